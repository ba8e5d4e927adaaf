package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	PasswordHash string    `gorm:"not null;column:password_hash" json:"-"`
	FullName     string    `gorm:"column:full_name" json:"full_name"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "app_user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Models lists every table owned by the application, in migration order.
func Models() []any {
	return []any{
		&User{},
		&Source{},
		&DescribableUnit{},
		&ConversationTurn{},
		&PinnedView{},
	}
}

// ReservedTables are application tables that must never be offered to the
// query synthesizer when it targets the local engine.
func ReservedTables() []string {
	return []string{"app_user", "source", "data_asset", "conversation_turn", "pinned_view"}
}
