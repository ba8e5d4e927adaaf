package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/modules/query"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/pinecone"
)

// VectorRetriever searches the caller's namespace of the vector index.
type VectorRetriever struct {
	log      *logger.Logger
	embedder Embedder
	vectors  pinecone.VectorStore
}

var _ query.Retriever = (*VectorRetriever)(nil)

func NewVectorRetriever(log *logger.Logger, embedder Embedder, vectors pinecone.VectorStore) *VectorRetriever {
	return &VectorRetriever{
		log:      log.With("service", "VectorRetriever"),
		embedder: embedder,
		vectors:  vectors,
	}
}

func (r *VectorRetriever) Search(ctx context.Context, owner uuid.UUID, question string, topK int) ([]query.Passage, error) {
	if r.vectors == nil || r.embedder == nil || strings.TrimSpace(question) == "" {
		return nil, nil
	}
	embs, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("embed question: empty embedding")
	}
	matches, err := r.vectors.QueryMatches(ctx, owner.String(), embs[0], topK, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	out := make([]query.Passage, 0, len(matches))
	for _, m := range matches {
		text := metaString(m.Metadata, "text")
		if text == "" {
			continue
		}
		out = append(out, query.Passage{
			UnitID: metaString(m.Metadata, "asset_id"),
			Title:  metaString(m.Metadata, "title"),
			Text:   text,
			Score:  m.Score,
		})
	}
	r.log.WithContext(ctx).Debug("retrieval finished", "owner_id", owner, "matches", len(matches), "passages", len(out))
	return out, nil
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return strings.TrimSpace(s)
}
