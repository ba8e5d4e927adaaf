package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/modules/ingest"
	"github.com/yungbote/fluent-backend/internal/platform/apierr"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/objectstore"
	"github.com/yungbote/fluent-backend/internal/platform/pinecone"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
	"github.com/yungbote/fluent-backend/internal/realtime"
	"github.com/yungbote/fluent-backend/internal/repos"
	"github.com/yungbote/fluent-backend/internal/types"
)

// MaxUploadBytes bounds a single uploaded file.
const MaxUploadBytes = 50 << 20

const sourceTypeGSheet = "gsheet"

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type SourceSummary struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Kind      types.SourceKind `json:"type"`
	Host      string           `json:"host"`
	Status    string           `json:"status"`
	Units     int              `json:"units"`
	CreatedAt time.Time        `json:"created_at"`
}

type SourceProfile struct {
	Source *types.Source            `json:"source"`
	Units  []*types.DescribableUnit `json:"units"`
}

type ConnectionRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type TestResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type UploadResult struct {
	Source *types.Source          `json:"source"`
	Unit   *types.DescribableUnit `json:"unit"`
	Chunks int                    `json:"chunks,omitempty"`
}

type SourceService interface {
	List(ctx context.Context) ([]SourceSummary, error)
	Profile(ctx context.Context, sourceID uuid.UUID) (*SourceProfile, error)
	RegisterConnection(ctx context.Context, req ConnectionRequest) (*types.Source, error)
	Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error)
	Rename(ctx context.Context, sourceID uuid.UUID, name string) (*types.Source, error)
	Delete(ctx context.Context, sourceID uuid.UUID) error
	Test(ctx context.Context, sourceID uuid.UUID) (*TestResult, error)
}

type SourceServiceDeps struct {
	DB             *gorm.DB
	Log            *logger.Logger
	Sources        repos.SourceRepo
	Assets         repos.DataAssetRepo
	Describer      *ingest.Describer
	Embedder       Embedder
	Vectors        pinecone.VectorStore
	Bucket         objectstore.BucketService
	Bus            realtime.Bus
	Local          *sql.DB
	LocalDialect   sqlengine.Dialect
	ConnectTimeout time.Duration
	HTTPClient     *http.Client
	// ConnectionDialects limits RegisterConnection; nil means sqlengine.RemoteDialects.
	ConnectionDialects []sqlengine.Dialect
}

type sourceService struct {
	db             *gorm.DB
	log            *logger.Logger
	sources        repos.SourceRepo
	assets         repos.DataAssetRepo
	describer      *ingest.Describer
	embedder       Embedder
	vectors        pinecone.VectorStore
	bucket         objectstore.BucketService
	bus            realtime.Bus
	local          *sql.DB
	localDialect   sqlengine.Dialect
	connectTimeout time.Duration
	httpClient     *http.Client
	connDialects   map[sqlengine.Dialect]bool
}

func NewSourceService(deps SourceServiceDeps) SourceService {
	bus := deps.Bus
	if bus == nil {
		bus = realtime.NewLocalBus()
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &sourceService{
		db:             deps.DB,
		log:            deps.Log.With("service", "SourceService"),
		sources:        deps.Sources,
		assets:         deps.Assets,
		describer:      deps.Describer,
		embedder:       deps.Embedder,
		vectors:        deps.Vectors,
		bucket:         deps.Bucket,
		bus:            bus,
		local:          deps.Local,
		localDialect:   deps.LocalDialect,
		connectTimeout: deps.ConnectTimeout,
		httpClient:     client,
		connDialects:   dialectSet(deps.ConnectionDialects),
	}
}

func dialectSet(ds []sqlengine.Dialect) map[sqlengine.Dialect]bool {
	if len(ds) == 0 {
		ds = sqlengine.RemoteDialects()
	}
	out := make(map[sqlengine.Dialect]bool, len(ds))
	for _, d := range ds {
		out[d] = true
	}
	return out
}

func (s *sourceService) List(ctx context.Context) ([]SourceSummary, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	srcs, err := s.sources.ListByOwner(ctx, nil, owner)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	units, err := s.assets.ListByOwner(ctx, nil, owner)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	counts := make(map[uuid.UUID]int, len(srcs))
	for _, u := range units {
		counts[u.SourceID]++
	}
	out := make([]SourceSummary, 0, len(srcs))
	for _, src := range srcs {
		out = append(out, SourceSummary{
			ID:        src.ID,
			Name:      src.DisplayName,
			Kind:      src.Kind,
			Host:      sourceHost(src),
			Status:    "active",
			Units:     counts[src.ID],
			CreatedAt: src.CreatedAt,
		})
	}
	return out, nil
}

func sourceHost(src *types.Source) string {
	switch src.Kind {
	case types.SourceKindExternalDatabase:
		if d, err := decodeDescriptor(src); err == nil {
			return d.Target()
		}
		return "unknown"
	case types.SourceKindSpreadsheetImport:
		return "Google Sheets"
	default:
		return "file"
	}
}

func (s *sourceService) Profile(ctx context.Context, sourceID uuid.UUID) (*SourceProfile, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	src, err := s.sources.GetByID(ctx, nil, owner, sourceID)
	if err != nil {
		return nil, err
	}
	units, err := s.assets.GetBySourceIDs(ctx, nil, []uuid.UUID{src.ID})
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	return &SourceProfile{Source: src, Units: units}, nil
}

func (s *sourceService) RegisterConnection(ctx context.Context, req ConnectionRequest) (*types.Source, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apierr.Invalid("name is required")
	}
	kind := strings.ToLower(strings.TrimSpace(req.Type))
	if kind == sourceTypeGSheet {
		return s.importSheet(ctx, owner, name, req.Host)
	}

	dialect, err := sqlengine.ParseDialect(kind)
	if err != nil {
		return nil, apierr.Invalid("%s", err.Error())
	}
	if !s.connDialects[dialect] {
		return nil, apierr.Invalid("database type %q cannot be registered as a connection", kind)
	}
	d := sqlengine.Descriptor{
		Dialect:  dialect,
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		Database: strings.TrimSpace(req.Database),
	}
	if err := d.Validate(); err != nil {
		return nil, apierr.Invalid("%s", err.Error())
	}

	session, err := sqlengine.Open(ctx, d, s.connectTimeout)
	if err != nil {
		s.log.WithContext(ctx).Warn("external connection failed", "target", d.Target(), "error", err)
		return nil, apierr.New(http.StatusBadRequest, "connection_failed", fmt.Errorf("could not connect to %s: %w", d.Target(), err))
	}
	tables, err := session.Tables(ctx)
	_ = session.Close()
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "introspection_failed", fmt.Errorf("read schema of %s: %w", d.Target(), err))
	}

	profile := ingest.ProfileDatabase(d, tables)
	desc := s.describer.Describe(ctx, ingest.DescribeInput{
		Name:     name,
		Kind:     types.SourceKindExternalDatabase,
		Sample:   profile.SchemaSummary,
		Fallback: profile.SchemaSummary,
	})
	descriptor, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	meta, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}

	now := time.Now().UTC()
	src := &types.Source{
		ID:                   uuid.New(),
		OwnerID:              owner,
		DisplayName:          name,
		Kind:                 types.SourceKindExternalDatabase,
		ConnectionDescriptor: datatypes.JSON(descriptor),
	}
	unit := &types.DescribableUnit{
		ID:                 uuid.New(),
		SourceID:           src.ID,
		OwnerID:            owner,
		DisplayName:        d.Database,
		Description:        desc,
		StructuredMetadata: datatypes.JSON(meta),
		LastSyncedAt:       &now,
	}
	if err := s.commit(ctx, src, unit); err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).Info("external source registered", "source_id", src.ID, "owner_id", owner, "tables", len(tables))
	s.publish(ctx, realtime.EventSourceCreated, owner, src.ID)
	return src, nil
}

type sheetDescriptor struct {
	URL string `json:"url"`
}

func (s *sourceService) importSheet(ctx context.Context, owner uuid.UUID, name, rawURL string) (*types.Source, error) {
	exportURL, err := ingest.SheetExportURL(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := ingest.FetchSheet(ctx, s.httpClient, exportURL)
	if err != nil {
		return nil, err
	}
	tbl, err := ingest.ParseCSV(data)
	if err != nil {
		return nil, apierr.Invalid("%s", err.Error())
	}
	descriptor, _ := json.Marshal(sheetDescriptor{URL: strings.TrimSpace(rawURL)})
	src := &types.Source{
		ID:                   uuid.New(),
		OwnerID:              owner,
		DisplayName:          name,
		Kind:                 types.SourceKindSpreadsheetImport,
		ConnectionDescriptor: datatypes.JSON(descriptor),
	}
	unit, undo, err := s.loadTable(ctx, owner, src, name, tbl)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, src, unit); err != nil {
		undo()
		return nil, err
	}
	s.log.WithContext(ctx).Info("spreadsheet imported", "source_id", src.ID, "table", src.LocalTable, "rows", len(tbl.Rows))
	s.publish(ctx, realtime.EventSourceCreated, owner, src.ID)
	return src, nil
}

func (s *sourceService) Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apierr.Invalid("filename is required")
	}
	if len(data) == 0 {
		return nil, apierr.Invalid("file is empty")
	}
	if len(data) > MaxUploadBytes {
		return nil, apierr.Invalid("file exceeds %d bytes", MaxUploadBytes)
	}
	format, err := ingest.DetectFormat(filename)
	if err != nil {
		return nil, apierr.Invalid("%s", err.Error())
	}

	src := &types.Source{
		ID:               uuid.New(),
		OwnerID:          owner,
		DisplayName:      filename,
		OriginalFilename: filename,
	}

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	if s.bucket != nil {
		key := objectstore.SourceKey(owner, src.ID, filename)
		if err := s.bucket.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), format.ContentType()); err != nil {
			return nil, fmt.Errorf("store upload: %w", err)
		}
		src.ObjectKey = key
		undo = append(undo, func() { s.deleteObject(context.Background(), key) })
	}

	var (
		unit   *types.DescribableUnit
		chunks int
	)
	if format.Tabular() {
		src.Kind = types.SourceKindUploadedTable
		var tbl *ingest.Table
		if format == ingest.FormatXLSX {
			tbl, err = ingest.ParseXLSX(data)
		} else {
			tbl, err = ingest.ParseCSV(data)
		}
		if err != nil {
			rollback()
			return nil, apierr.Invalid("%s", err.Error())
		}
		var drop func()
		unit, drop, err = s.loadTable(ctx, owner, src, filename, tbl)
		if err != nil {
			rollback()
			return nil, err
		}
		undo = append(undo, drop)
	} else {
		src.Kind = types.SourceKindDocument
		var purge func()
		unit, chunks, purge, err = s.indexDocument(ctx, owner, src, filename, format, data)
		if err != nil {
			rollback()
			return nil, err
		}
		undo = append(undo, purge)
	}

	if err := s.commit(ctx, src, unit); err != nil {
		rollback()
		return nil, err
	}
	s.log.WithContext(ctx).Info("upload ingested", "source_id", src.ID, "owner_id", owner, "kind", string(src.Kind), "chunks", chunks)
	s.publish(ctx, realtime.EventSourceCreated, owner, src.ID)
	return &UploadResult{Source: src, Unit: unit, Chunks: chunks}, nil
}

// loadTable writes tbl into the local engine and describes it. The returned
// func drops the table again.
func (s *sourceService) loadTable(ctx context.Context, owner uuid.UUID, src *types.Source, name string, tbl *ingest.Table) (*types.DescribableUnit, func(), error) {
	tbl.Columns = ingest.NormalizeColumns(tbl.Columns)
	table, err := s.uniqueTableName(ctx, owner, name)
	if err != nil {
		return nil, nil, err
	}
	if err := sqlengine.CreateTextTable(ctx, s.local, s.localDialect, table, tbl.Columns); err != nil {
		return nil, nil, fmt.Errorf("create local table: %w", err)
	}
	drop := func() {
		if err := sqlengine.DropTable(context.Background(), s.local, s.localDialect, table); err != nil {
			s.log.Warn("drop local table failed", "table", table, "error", err)
		}
	}
	if err := sqlengine.InsertRows(ctx, s.local, s.localDialect, table, tbl.Columns, tbl.Rows); err != nil {
		drop()
		return nil, nil, fmt.Errorf("load local table: %w", err)
	}
	src.LocalTable = table

	profile := ingest.ProfileTable(tbl)
	desc := s.describer.Describe(ctx, ingest.DescribeInput{
		Name:     name,
		Kind:     src.Kind,
		Sample:   ingest.MarkdownSample(tbl),
		Fallback: ingest.TableFallback(name, profile),
	})
	meta, err := json.Marshal(profile)
	if err != nil {
		drop()
		return nil, nil, fmt.Errorf("encode profile: %w", err)
	}
	now := time.Now().UTC()
	unit := &types.DescribableUnit{
		ID:                 uuid.New(),
		SourceID:           src.ID,
		OwnerID:            owner,
		DisplayName:        table,
		Description:        desc,
		StructuredMetadata: datatypes.JSON(meta),
		LastSyncedAt:       &now,
	}
	// The description vector is auxiliary; a failed upsert leaves the unit unindexed.
	if err := s.upsertTexts(ctx, owner, unit, name, []string{desc}); err != nil {
		s.log.WithContext(ctx).Warn("description vector upsert failed", "source_id", src.ID, "error", err)
	} else if s.vectors != nil && s.embedder != nil {
		unit.Indexed = true
	}
	return unit, drop, nil
}

func (s *sourceService) uniqueTableName(ctx context.Context, owner uuid.UUID, filename string) (string, error) {
	base := ingest.TableName(owner, filename)
	srcs, err := s.sources.ListByOwner(ctx, nil, owner)
	if err != nil {
		return "", fmt.Errorf("list sources: %w", err)
	}
	taken := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		if src.LocalTable != "" {
			taken[src.LocalTable] = true
		}
	}
	name := base
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	return name, nil
}

func (s *sourceService) indexDocument(ctx context.Context, owner uuid.UUID, src *types.Source, filename string, format ingest.Format, data []byte) (*types.DescribableUnit, int, func(), error) {
	text, err := ingest.ExtractText(format, data)
	if err != nil {
		return nil, 0, nil, apierr.Invalid("could not read %s: %s", filename, err.Error())
	}
	if text == "" {
		return nil, 0, nil, apierr.Invalid("no text could be extracted from %s", filename)
	}
	if s.vectors == nil || s.embedder == nil {
		return nil, 0, nil, apierr.New(http.StatusServiceUnavailable, "vector_index_unavailable", errors.New("document indexing is not configured"))
	}
	chunks := ingest.Chunk(text, ingest.ChunkSize, ingest.ChunkOverlap, ingest.MaxChunks)
	profile := ingest.ProfileDocument(text, string(format), len(chunks))

	head := []rune(text)
	if len(head) > ingest.DocumentDescribeChars {
		head = head[:ingest.DocumentDescribeChars]
	}
	desc := s.describer.Describe(ctx, ingest.DescribeInput{
		Name:     filename,
		Kind:     types.SourceKindDocument,
		Sample:   string(head),
		Fallback: ingest.DocumentFallback(filename, profile),
	})
	meta, err := json.Marshal(profile)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("encode profile: %w", err)
	}
	now := time.Now().UTC()
	unit := &types.DescribableUnit{
		ID:                 uuid.New(),
		SourceID:           src.ID,
		OwnerID:            owner,
		DisplayName:        filename,
		Description:        desc,
		StructuredMetadata: datatypes.JSON(meta),
		Indexed:            true,
		LastSyncedAt:       &now,
	}
	if err := s.upsertTexts(ctx, owner, unit, filename, chunks); err != nil {
		return nil, 0, nil, fmt.Errorf("index document: %w", err)
	}
	purge := func() { _ = s.deleteVectors(context.Background(), owner, unit.ID) }
	return unit, len(chunks), purge, nil
}

// upsertTexts embeds texts and stores them as <unitID>:<n> in the owner's namespace.
func (s *sourceService) upsertTexts(ctx context.Context, owner uuid.UUID, unit *types.DescribableUnit, title string, texts []string) error {
	if s.vectors == nil || s.embedder == nil || len(texts) == 0 {
		return nil
	}
	embs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(embs) != len(texts) {
		return fmt.Errorf("embed: got %d vectors for %d inputs", len(embs), len(texts))
	}
	vectors := make([]pinecone.Vector, 0, len(texts))
	for i, t := range texts {
		vectors = append(vectors, pinecone.Vector{
			ID:     fmt.Sprintf("%s:%d", unit.ID, i),
			Values: embs[i],
			Metadata: map[string]any{
				"asset_id":  unit.ID.String(),
				"source_id": unit.SourceID.String(),
				"title":     title,
				"chunk":     i,
				"text":      t,
			},
		})
	}
	return s.vectors.Upsert(ctx, owner.String(), vectors)
}

func (s *sourceService) deleteVectors(ctx context.Context, owner, unitID uuid.UUID) error {
	if s.vectors == nil {
		return nil
	}
	return s.vectors.DeleteByFilter(ctx, owner.String(), pinecone.EqFilter("asset_id", unitID.String()))
}

func (s *sourceService) deleteObject(ctx context.Context, key string) {
	if s.bucket == nil || key == "" {
		return
	}
	if err := s.bucket.DeleteFile(ctx, key); err != nil {
		s.log.Warn("delete stored object failed", "key", key, "error", err)
	}
}

func (s *sourceService) commit(ctx context.Context, src *types.Source, unit *types.DescribableUnit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.sources.Create(ctx, tx, []*types.Source{src}); err != nil {
			return fmt.Errorf("create source: %w", err)
		}
		if _, err := s.assets.Create(ctx, tx, []*types.DescribableUnit{unit}); err != nil {
			return fmt.Errorf("create unit: %w", err)
		}
		return nil
	})
}

func (s *sourceService) Rename(ctx context.Context, sourceID uuid.UUID, name string) (*types.Source, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.Invalid("name is required")
	}
	if err := s.sources.Rename(ctx, nil, owner, sourceID, name); err != nil {
		return nil, err
	}
	src, err := s.sources.GetByID(ctx, nil, owner, sourceID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, realtime.EventSourceUpdated, owner, src.ID)
	return src, nil
}

// Delete removes vectors first, then the local table and stored object, and
// finally the units and source rows in one transaction.
func (s *sourceService) Delete(ctx context.Context, sourceID uuid.UUID) error {
	owner, err := requireUser(ctx)
	if err != nil {
		return err
	}
	src, err := s.sources.GetByID(ctx, nil, owner, sourceID)
	if err != nil {
		return err
	}
	units, err := s.assets.GetBySourceIDs(ctx, nil, []uuid.UUID{src.ID})
	if err != nil {
		return fmt.Errorf("load units: %w", err)
	}
	for _, u := range units {
		if !u.Indexed {
			continue
		}
		if err := s.deleteVectors(ctx, owner, u.ID); err != nil {
			return fmt.Errorf("delete vectors of %s: %w", u.ID, err)
		}
	}
	if src.LocalTable != "" {
		if err := sqlengine.DropTable(ctx, s.local, s.localDialect, src.LocalTable); err != nil {
			return fmt.Errorf("drop local table: %w", err)
		}
	}
	s.deleteObject(ctx, src.ObjectKey)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.assets.FullDeleteBySourceIDs(ctx, tx, []uuid.UUID{src.ID}); err != nil {
			return fmt.Errorf("delete units: %w", err)
		}
		if err := s.sources.FullDeleteByIDs(ctx, tx, owner, []uuid.UUID{src.ID}); err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithContext(ctx).Info("source deleted", "source_id", src.ID, "owner_id", owner, "units", len(units))
	s.publish(ctx, realtime.EventSourceDeleted, owner, src.ID)
	return nil
}

// Test reports whether a source is reachable now. Descriptions are left as they are.
func (s *sourceService) Test(ctx context.Context, sourceID uuid.UUID) (*TestResult, error) {
	owner, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	src, err := s.sources.GetByID(ctx, nil, owner, sourceID)
	if err != nil {
		return nil, err
	}
	if src.Kind != types.SourceKindExternalDatabase {
		return &TestResult{OK: true, Message: "Source is accessible."}, nil
	}
	d, err := decodeDescriptor(src)
	if err != nil {
		return nil, err
	}
	if err := sqlengine.Ping(ctx, d, s.connectTimeout); err != nil {
		s.log.WithContext(ctx).Info("connection test failed", "source_id", src.ID, "target", d.Target(), "error", err)
		return &TestResult{OK: false, Message: err.Error()}, nil
	}
	return &TestResult{OK: true, Message: "Connection succeeded."}, nil
}

func (s *sourceService) publish(ctx context.Context, typ realtime.EventType, owner, id uuid.UUID) {
	if err := s.bus.Publish(ctx, realtime.Event{Type: typ, UserID: owner, ID: id}); err != nil {
		s.log.WithContext(ctx).Warn("publish event failed", "type", string(typ), "error", err)
	}
}
