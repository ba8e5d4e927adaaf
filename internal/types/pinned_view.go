package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PinnedView keeps a query and a snapshot of its last result. A nil SourceID
// means the local default engine.
type PinnedView struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	SourceID     *uuid.UUID     `gorm:"type:uuid" json:"source_id,omitempty"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	ChartKind    string         `gorm:"column:chart_kind;not null;default:'bar'" json:"chart_kind"`
	QueryText    string         `gorm:"column:query_text;type:text;not null" json:"query_text"`
	CachedResult datatypes.JSON `gorm:"column:cached_result;type:jsonb" json:"cached_result"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	RefreshedAt  *time.Time     `gorm:"column:refreshed_at" json:"refreshed_at,omitempty"`
}

func (PinnedView) TableName() string { return "pinned_view" }

func (v *PinnedView) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
