package query

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
)

// fakeCompleter answers by prompt name. A reply func, when set, wins.
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[prompts.PromptName]string
	errs    map[prompts.PromptName]error
	reply   func(p prompts.Prompt) (string, error)
	seen    []prompts.Prompt
}

func (f *fakeCompleter) record(p prompts.Prompt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, p)
}

func (f *fakeCompleter) calls(name prompts.PromptName) []prompts.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []prompts.Prompt
	for _, p := range f.seen {
		if p.Name == string(name) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeCompleter) Complete(_ context.Context, p prompts.Prompt) (string, error) {
	f.record(p)
	if f.reply != nil {
		return f.reply(p)
	}
	name := prompts.PromptName(p.Name)
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return f.replies[name], nil
}

func (f *fakeCompleter) CompleteStructured(ctx context.Context, p prompts.Prompt) (map[string]any, error) {
	raw, err := f.Complete(ctx, p)
	if err != nil {
		return nil, err
	}
	return DecodeStructured(raw)
}

var errModelDown = errors.New("model unavailable")

// fakeCatalog serves every candidate from one in-memory database.
type fakeCatalog struct {
	db      *sql.DB
	cands   Candidates
	err     error
	openErr error
	opened  []string
}

func (c *fakeCatalog) Candidates(context.Context, uuid.UUID) (Candidates, error) {
	return c.cands, c.err
}

func (c *fakeCatalog) Open(_ context.Context, _ uuid.UUID, cand Candidate) (*sqlengine.Session, error) {
	c.opened = append(c.opened, cand.ID)
	if c.openErr != nil {
		return nil, c.openErr
	}
	return sqlengine.Borrow(c.db, sqlengine.SQLite, sqlengine.Scope{Prefix: "u_"}), nil
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
