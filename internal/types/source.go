package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SourceKind string

const (
	SourceKindUploadedTable     SourceKind = "uploaded-table"
	SourceKindExternalDatabase  SourceKind = "external-database"
	SourceKindDocument          SourceKind = "document"
	SourceKindSpreadsheetImport SourceKind = "spreadsheet-import"
)

// Structured reports whether the source can answer SQL.
func (k SourceKind) Structured() bool {
	return k == SourceKindUploadedTable || k == SourceKindExternalDatabase || k == SourceKindSpreadsheetImport
}

// Source is a user-owned data origin. OwnerID is not a foreign key.
type Source struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID              uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	DisplayName          string         `gorm:"column:display_name;not null" json:"display_name"`
	Kind                 SourceKind     `gorm:"column:kind;not null;index" json:"kind"`
	ConnectionDescriptor datatypes.JSON `gorm:"column:connection_descriptor;type:jsonb" json:"-"`
	LocalTable           string         `gorm:"column:local_table" json:"local_table,omitempty"`
	ObjectKey            string         `gorm:"column:object_key" json:"-"`
	OriginalFilename     string         `gorm:"column:original_filename" json:"original_filename,omitempty"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null" json:"updated_at"`
}

func (Source) TableName() string { return "source" }

func (s *Source) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
