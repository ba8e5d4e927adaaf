package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
)

type recorded struct {
	path string
	body map[string]any
}

func newTestStore(t *testing.T, reply any) (VectorStore, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, recorded{path: r.URL.Path, body: body})
		if r.Header.Get("Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)

	pc, err := New(logger.Nop(), Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vs, err := NewVectorStore(context.Background(), logger.Nop(), pc, StoreConfig{IndexHost: srv.URL})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	return vs, &calls
}

func TestDeleteByFilterSendsAssetFilter(t *testing.T) {
	vs, calls := newTestStore(t, map[string]any{})
	if err := vs.DeleteByFilter(context.Background(), "owner-1", EqFilter("asset_id", "u-1")); err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(*calls))
	}
	c := (*calls)[0]
	if c.path != "/vectors/delete" {
		t.Fatalf("path: %s", c.path)
	}
	if c.body["namespace"] != "fluent:owner-1" {
		t.Fatalf("namespace: %v", c.body["namespace"])
	}
	filter, _ := c.body["filter"].(map[string]any)
	cond, _ := filter["asset_id"].(map[string]any)
	if cond["$eq"] != "u-1" {
		t.Fatalf("filter: %v", c.body["filter"])
	}
}

func TestDeleteByFilterRejectsEmptyFilter(t *testing.T) {
	vs, calls := newTestStore(t, map[string]any{})
	if err := vs.DeleteByFilter(context.Background(), "ns", nil); err == nil {
		t.Fatalf("expected error for empty filter")
	}
	if len(*calls) != 0 {
		t.Fatalf("no request expected, got %d", len(*calls))
	}
}

func TestQueryMatchesReturnsMetadata(t *testing.T) {
	vs, calls := newTestStore(t, map[string]any{
		"matches": []any{
			map[string]any{"id": "u-1:0", "score": 0.9, "metadata": map[string]any{"text": "hello"}},
			map[string]any{"id": "", "score": 0.1},
		},
	})
	got, err := vs.QueryMatches(context.Background(), "ns", []float32{0.1}, 5, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(got) != 1 || got[0].Metadata["text"] != "hello" {
		t.Fatalf("unexpected matches: %+v", got)
	}
	if (*calls)[0].body["includeMetadata"] != true {
		t.Fatalf("metadata must be requested")
	}
}
