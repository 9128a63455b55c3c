package model

import (
	"fmt"
	"time"

	"seqquest/platform"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is one ordered question/answer thread, owned by exactly
// one session.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"index;size:36;not null" json:"session_id"`
	Topic     string    `gorm:"size:255" json:"topic"`
	IsActive  bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func CreateConversation(conversation *Conversation) error {
	db := platform.DB
	if err := db.Create(conversation).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation returns nil without error when no row matches.
func GetConversation(id string) (*Conversation, error) {
	db := platform.DB
	var conversation Conversation
	if err := db.Where("id = ?", id).First(&conversation).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &conversation, nil
}

// DeactivateConversation flips the conversation to inactive and returns
// nil without error when no row matches. Already-inactive conversations
// are left as they are, so the call is idempotent.
func DeactivateConversation(id string) (*Conversation, error) {
	db := platform.DB
	conversation, err := GetConversation(id)
	if err != nil || conversation == nil {
		return nil, err
	}
	if !conversation.IsActive {
		return conversation, nil
	}
	if err := db.Model(conversation).Update("is_active", false).Error; err != nil {
		return nil, fmt.Errorf("failed to deactivate conversation: %w", err)
	}
	conversation.IsActive = false
	return conversation, nil
}
