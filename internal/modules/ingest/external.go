package ingest

import (
	"fmt"
	"strings"

	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
	"github.com/yungbote/fluent-backend/internal/types"
)

// ProfileDatabase summarizes an introspected external database.
func ProfileDatabase(d sqlengine.Descriptor, tables []sqlengine.Table) types.DatabaseProfile {
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name)
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", t.Name, strings.Join(cols, ", ")))
	}
	summary := fmt.Sprintf("External %s database %s. Contains tables: %s", d.Dialect, d.Database, strings.Join(parts, "; "))
	if len(parts) == 0 {
		summary = fmt.Sprintf("External %s database %s. No tables were visible.", d.Dialect, d.Database)
	}
	return types.DatabaseProfile{
		Dialect:       string(d.Dialect),
		Target:        d.Target(),
		TableCount:    len(tables),
		SchemaSummary: summary,
	}
}
