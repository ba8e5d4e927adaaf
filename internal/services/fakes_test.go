package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/yungbote/fluent-backend/internal/db"
	"github.com/yungbote/fluent-backend/internal/modules/ingest"
	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/ctxutil"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/pinecone"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
	"github.com/yungbote/fluent-backend/internal/repos"
)

func newTestDB(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: ":memory:"}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(gdb, logger.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb, sqlDB
}

func userCtx(owner uuid.UUID) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: owner})
}

// journal records side effects across fakes in call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

type fakeDescribeModel struct {
	reply string
	err   error
}

func (f *fakeDescribeModel) Complete(context.Context, prompts.Prompt) (string, error) {
	return f.reply, f.err
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeVectors struct {
	log       *journal
	deleteErr error
	upserts   map[string][]pinecone.Vector
	matches   []pinecone.VectorMatch
	queries   []string
}

func (f *fakeVectors) Upsert(_ context.Context, ns string, vectors []pinecone.Vector) error {
	if f.upserts == nil {
		f.upserts = map[string][]pinecone.Vector{}
	}
	f.upserts[ns] = append(f.upserts[ns], vectors...)
	return nil
}

func (f *fakeVectors) QueryMatches(_ context.Context, ns string, _ []float32, topK int, _ map[string]any) ([]pinecone.VectorMatch, error) {
	f.queries = append(f.queries, ns)
	if topK < len(f.matches) {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

func (f *fakeVectors) DeleteIDs(_ context.Context, ns string, ids []string) error {
	f.log.add("vectors.ids:%s:%s", ns, strings.Join(ids, ","))
	return nil
}

func (f *fakeVectors) DeleteByFilter(_ context.Context, ns string, filter map[string]any) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	cond, _ := filter["asset_id"].(map[string]any)
	f.log.add("vectors:%s:%v", ns, cond["$eq"])
	return nil
}

type fakeBucket struct {
	log     *journal
	objects map[string]int64
}

func (b *fakeBucket) UploadFile(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	if b.objects == nil {
		b.objects = map[string]int64{}
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	b.objects[key] = size
	return nil
}

func (b *fakeBucket) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(key)), nil
}

func (b *fakeBucket) DeleteFile(_ context.Context, key string) error {
	b.log.add("object:%s", key)
	delete(b.objects, key)
	return nil
}

type sourceFixture struct {
	gdb      *gorm.DB
	local    *sql.DB
	sources  repos.SourceRepo
	assets   repos.DataAssetRepo
	model    *fakeDescribeModel
	embedder *fakeEmbedder
	vectors  *fakeVectors
	bucket   *fakeBucket
	journal  *journal
	deps     SourceServiceDeps
	svc      SourceService
	catalog  *SourceCatalog
}

func newSourceFixture(t *testing.T) *sourceFixture {
	t.Helper()
	gdb, local := newTestDB(t)
	j := &journal{}
	f := &sourceFixture{
		gdb:      gdb,
		local:    local,
		sources:  repos.NewSourceRepo(gdb, logger.Nop()),
		assets:   repos.NewDataAssetRepo(gdb, logger.Nop()),
		model:    &fakeDescribeModel{reply: "Monthly sales by month."},
		embedder: &fakeEmbedder{},
		vectors:  &fakeVectors{log: j},
		bucket:   &fakeBucket{log: j},
		journal:  j,
	}
	f.deps = SourceServiceDeps{
		DB:           gdb,
		Log:          logger.Nop(),
		Sources:      f.sources,
		Assets:       f.assets,
		Describer:    ingest.NewDescriber(f.model, logger.Nop()),
		Embedder:     f.embedder,
		Vectors:      f.vectors,
		Bucket:       f.bucket,
		Local:        local,
		LocalDialect: sqlengine.SQLite,
	}
	f.svc = NewSourceService(f.deps)
	f.catalog = NewSourceCatalog(logger.Nop(), f.sources, f.assets, local, sqlengine.SQLite, 0)
	return f
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n); err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	return n > 0
}
