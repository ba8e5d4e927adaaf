package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DescribableUnit is one describable piece of a Source (a table, a schema, a
// document). Description is written once at ingestion and never re-derived.
// Indexed units have vectors keyed by asset_id = ID in the vector index.
type DescribableUnit struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"source_id"`
	OwnerID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	DisplayName        string         `gorm:"column:display_name;not null" json:"display_name"`
	Description        string         `gorm:"column:natural_language_description;type:text;not null" json:"description"`
	StructuredMetadata datatypes.JSON `gorm:"column:structured_metadata;type:jsonb" json:"structured_metadata,omitempty"`
	Indexed            bool           `gorm:"column:is_indexed;not null;default:false" json:"is_indexed"`
	LastSyncedAt       *time.Time     `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
}

func (DescribableUnit) TableName() string { return "data_asset" }

func (u *DescribableUnit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TableProfile is the structured metadata of a tabular unit.
type TableProfile struct {
	TotalRows     int                 `json:"total_rows"`
	TotalColumns  int                 `json:"total_columns"`
	Columns       []string            `json:"columns_list"`
	MissingValues map[string]int      `json:"missing_values"`
	Preview       []map[string]string `json:"preview"`
	Encoding      string              `json:"encoding,omitempty"`
	Delimiter     string              `json:"delimiter,omitempty"`
}

// DocumentProfile is the structured metadata of a text unit.
type DocumentProfile struct {
	Sample     string `json:"content_sample"`
	Characters int    `json:"characters"`
	Chunks     int    `json:"chunks"`
	Format     string `json:"format"`
}

// DatabaseProfile is the structured metadata of a live external database.
type DatabaseProfile struct {
	Dialect       string `json:"dialect"`
	Target        string `json:"target"`
	TableCount    int    `json:"table_count"`
	SchemaSummary string `json:"schema_summary"`
}
