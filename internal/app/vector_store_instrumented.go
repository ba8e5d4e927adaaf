package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/fluent-backend/internal/observability"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/pinecone"
)

// instrumentedVectorStore wraps every index call in a span and logs slow or failed calls.
type instrumentedVectorStore struct {
	provider string
	inner    pinecone.VectorStore
	log      *logger.Logger
	slow     time.Duration
}

func instrumentVectorStore(log *logger.Logger, provider string, inner pinecone.VectorStore) pinecone.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{
		provider: provider,
		inner:    inner,
		log:      log.With("component", "VectorStore", "provider", provider),
		slow:     2 * time.Second,
	}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) (err error) {
	ctx, done := s.start(ctx, "upsert", attribute.Int("vector.count", len(vectors)))
	defer func() { done(err) }()
	return s.inner.Upsert(ctx, namespace, vectors)
}

func (s *instrumentedVectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) (out []pinecone.VectorMatch, err error) {
	ctx, done := s.start(ctx, "query_matches", attribute.Int("vector.top_k", topK))
	defer func() { done(err) }()
	return s.inner.QueryMatches(ctx, namespace, q, topK, filter)
}

func (s *instrumentedVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) (err error) {
	ctx, done := s.start(ctx, "delete_ids", attribute.Int("vector.count", len(ids)))
	defer func() { done(err) }()
	return s.inner.DeleteIDs(ctx, namespace, ids)
}

func (s *instrumentedVectorStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) (err error) {
	ctx, done := s.start(ctx, "delete_by_filter")
	defer func() { done(err) }()
	return s.inner.DeleteByFilter(ctx, namespace, filter)
}

func (s *instrumentedVectorStore) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	begin := time.Now()
	attrs = append(attrs, attribute.String("vector.provider", s.provider), attribute.String("vector.operation", operation))
	ctx, span := observability.StartSpan(ctx, "vectors."+operation, attrs...)
	return ctx, func(err error) {
		dur := time.Since(begin)
		observability.EndSpan(span, err)
		switch {
		case err != nil:
			s.log.Warn("Vector store call failed", "operation", operation, "duration_ms", dur.Milliseconds(), "error", err)
		case dur > s.slow:
			s.log.Warn("Slow vector store call", "operation", operation, "duration_ms", dur.Milliseconds())
		}
	}
}
