package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// ConversationTurn is append-only.
type ConversationTurn struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_turn_user_created,priority:1" json:"user_id"`
	Role      TurnRole  `gorm:"column:role;not null" json:"role"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	ToolUsed  string    `gorm:"column:tool_used" json:"tool_used,omitempty"`
	CreatedAt time.Time `gorm:"not null;index:idx_turn_user_created,priority:2" json:"timestamp"`
}

func (ConversationTurn) TableName() string { return "conversation_turn" }

func (t *ConversationTurn) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
