package model

import (
	"fmt"
	"time"

	"seqquest/platform"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation's append-only log. Sequence
// numbers are assigned by AppendMessages and are gapless and strictly
// increasing within a conversation; rows are never updated or deleted.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"index:idx_conversation_sequence;size:36;not null" json:"conversation_id"`
	Role           string    `gorm:"size:64" json:"role"`
	Content        string    `gorm:"type:text" json:"content"`
	Metadata       string    `gorm:"type:text" json:"metadata,omitempty"`
	SequenceNumber int       `gorm:"index:idx_conversation_sequence" json:"sequence_number"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// GetMessages returns the full ordered log of a conversation.
func GetMessages(conversationID string) ([]Message, error) {
	db := platform.DB
	var messages []Message
	err := db.Where("conversation_id = ?", conversationID).
		Order("sequence_number ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return messages, nil
}

// CountQuestions counts the assistant turns already stored for a
// conversation; question numbering continues from there.
func CountQuestions(conversationID string) (int, error) {
	db := platform.DB
	var count int64
	err := db.Model(&Message{}).
		Where("conversation_id = ? AND role = ?", conversationID, RoleAssistant).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("database query failed: %w", err)
	}
	return int(count), nil
}

// AppendMessages appends entries to the conversation log inside one
// transaction, continuing the sequence from the stored maximum. The
// conversation row is locked for the duration so concurrent appends from
// other replicas cannot hand out duplicate sequence numbers.
func AppendMessages(conversationID string, entries []Message) ([]Message, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	db := platform.DB
	err := db.Transaction(func(tx *gorm.DB) error {
		locked := tx
		if tx.Dialector.Name() == "mysql" {
			// sqlite has no row locks; its single writer serializes appends
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var conversation Conversation
		if err := locked.Where("id = ?", conversationID).First(&conversation).Error; err != nil {
			return fmt.Errorf("conversation lookup failed: %w", err)
		}

		var maxSequence int
		err := tx.Model(&Message{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(sequence_number), 0)").
			Scan(&maxSequence).Error
		if err != nil {
			return fmt.Errorf("sequence lookup failed: %w", err)
		}

		for i := range entries {
			entries[i].ConversationID = conversationID
			entries[i].SequenceNumber = maxSequence + i + 1
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append messages: %w", err)
	}
	return entries, nil
}
