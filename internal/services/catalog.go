package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/modules/ingest"
	"github.com/yungbote/fluent-backend/internal/modules/query"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
	"github.com/yungbote/fluent-backend/internal/repos"
	"github.com/yungbote/fluent-backend/internal/types"
)

// maxLocalSummaryTables bounds how many uploaded tables the local candidate lists.
const maxLocalSummaryTables = 20

// SourceCatalog resolves an owner's sources into routable candidates and
// opens sessions against them.
type SourceCatalog struct {
	log            *logger.Logger
	sources        repos.SourceRepo
	assets         repos.DataAssetRepo
	local          *sql.DB
	localDialect   sqlengine.Dialect
	connectTimeout time.Duration
}

var _ query.SourceCatalog = (*SourceCatalog)(nil)

func NewSourceCatalog(
	log *logger.Logger,
	sourceRepo repos.SourceRepo,
	assetRepo repos.DataAssetRepo,
	local *sql.DB,
	localDialect sqlengine.Dialect,
	connectTimeout time.Duration,
) *SourceCatalog {
	return &SourceCatalog{
		log:            log.With("service", "SourceCatalog"),
		sources:        sourceRepo,
		assets:         assetRepo,
		local:          local,
		localDialect:   localDialect,
		connectTimeout: connectTimeout,
	}
}

// Candidates lists the local engine first, then every structured source.
func (c *SourceCatalog) Candidates(ctx context.Context, owner uuid.UUID) (query.Candidates, error) {
	srcs, err := c.sources.ListByOwner(ctx, nil, owner)
	if err != nil {
		return query.Candidates{}, fmt.Errorf("list sources: %w", err)
	}
	units, err := c.assets.ListByOwner(ctx, nil, owner)
	if err != nil {
		return query.Candidates{}, fmt.Errorf("list assets: %w", err)
	}
	descBySource := make(map[uuid.UUID]string, len(units))
	for _, u := range units {
		if _, ok := descBySource[u.SourceID]; !ok {
			descBySource[u.SourceID] = u.Description
		}
	}

	var (
		rest       []query.Candidate
		localParts []string
	)
	for _, s := range srcs {
		if !s.Kind.Structured() {
			continue
		}
		desc := descBySource[s.ID]
		rest = append(rest, query.Candidate{
			ID:          s.ID.String(),
			Name:        s.DisplayName,
			Description: desc,
			SourceID:    s.ID,
		})
		if s.LocalTable != "" && len(localParts) < maxLocalSummaryTables {
			localParts = append(localParts, fmt.Sprintf("%s (%s)", s.LocalTable, s.DisplayName))
		}
	}
	return query.WithDefault(query.LocalCandidate(localDescription(localParts)), rest...), nil
}

func localDescription(tables []string) string {
	if len(tables) == 0 {
		return "Local database holding the user's uploaded files. No tables have been uploaded yet."
	}
	return "Local database holding every table the user uploaded or imported: " + strings.Join(tables, ", ") + "."
}

// Open returns a session for cand. External sessions own a fresh connection;
// local sessions borrow the application pool.
func (c *SourceCatalog) Open(ctx context.Context, owner uuid.UUID, cand query.Candidate) (*sqlengine.Session, error) {
	if cand.Local {
		return sqlengine.Borrow(c.local, c.localDialect, sqlengine.Scope{
			Prefix:  ingest.TablePrefix(owner),
			Exclude: types.ReservedTables(),
		}), nil
	}
	src, err := c.sources.GetByID(ctx, nil, owner, cand.SourceID)
	if err != nil {
		return nil, err
	}
	switch src.Kind {
	case types.SourceKindExternalDatabase:
		d, err := decodeDescriptor(src)
		if err != nil {
			return nil, err
		}
		c.log.WithContext(ctx).Debug("opening external source", "source_id", src.ID, "target", d.Target())
		return sqlengine.Open(ctx, d, c.connectTimeout)
	case types.SourceKindUploadedTable, types.SourceKindSpreadsheetImport:
		if src.LocalTable == "" {
			return nil, fmt.Errorf("source %s has no local table", src.ID)
		}
		return sqlengine.Borrow(c.local, c.localDialect, sqlengine.Scope{Tables: []string{src.LocalTable}}), nil
	default:
		return nil, fmt.Errorf("source %s (%s) is not queryable", src.ID, src.Kind)
	}
}

func decodeDescriptor(src *types.Source) (sqlengine.Descriptor, error) {
	var d sqlengine.Descriptor
	if len(src.ConnectionDescriptor) == 0 {
		return d, fmt.Errorf("source %s has no connection descriptor", src.ID)
	}
	if err := json.Unmarshal(src.ConnectionDescriptor, &d); err != nil {
		return d, fmt.Errorf("decode connection descriptor: %w", err)
	}
	return d, nil
}
