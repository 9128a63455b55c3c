package model

import (
	"fmt"
	"time"

	"seqquest/platform"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is a user's umbrella context grouping one or more conversations.
// Sessions are never hard-deleted, only deactivated.
type Session struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserIdentifier string    `gorm:"index;size:255" json:"user_identifier"`
	Context        string    `gorm:"type:text" json:"context"`
	IsActive       bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func CreateSession(session *Session) error {
	db := platform.DB
	if err := db.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns nil without error when no row matches.
func GetSession(id string) (*Session, error) {
	db := platform.DB
	var session Session
	if err := db.Where("id = ?", id).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &session, nil
}

// GetActiveSessionByUser returns the most recently created active session
// for the user, or nil when there is none.
func GetActiveSessionByUser(userIdentifier string) (*Session, error) {
	db := platform.DB
	var session Session
	err := db.Where("user_identifier = ? AND is_active = ?", userIdentifier, true).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &session, nil
}

func ListActiveSessions() ([]Session, error) {
	db := platform.DB
	var sessions []Session
	if err := db.Where("is_active = ?", true).Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return sessions, nil
}

// DeactivateSession flips the session to inactive and returns nil without
// error when no row matches. Deactivating an already-inactive session is a
// no-op, so the call is idempotent.
func DeactivateSession(id string) (*Session, error) {
	db := platform.DB
	session, err := GetSession(id)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.IsActive {
		return session, nil
	}
	if err := db.Model(session).Update("is_active", false).Error; err != nil {
		return nil, fmt.Errorf("failed to deactivate session: %w", err)
	}
	session.IsActive = false
	return session, nil
}

// DeactivateIdleSessions flips sessions untouched since the cutoff to
// inactive and reports how many rows changed.
func DeactivateIdleSessions(before time.Time) (int64, error) {
	db := platform.DB
	result := db.Model(&Session{}).
		Where("is_active = ? AND updated_at < ?", true, before).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate idle sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
