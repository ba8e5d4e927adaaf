package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/pinecone"
)

const (
	payloadNamespaceKey = "_fluent_namespace"
	payloadVectorIDKey  = "_fluent_vector_id"
)

var pointIDNamespaceUUID = uuid.MustParse("6d1c6a8e-3b0f-4c52-9f8e-2f61b1f0c7aa")

// pointsAPI is the subset of *qc.Client the store needs.
type pointsAPI interface {
	Upsert(ctx context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error)
	Query(ctx context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error)
	Delete(ctx context.Context, req *qc.DeletePoints) (*qc.UpdateResult, error)
}

type vectorStore struct {
	log        *logger.Logger
	api        pointsAPI
	collection string
	nsPrefix   string
	dim        int
}

// NewVectorStore dials Qdrant over gRPC and ensures the collection exists.
func NewVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (pinecone.VectorStore, func() error, error) {
	if log == nil {
		return nil, nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}
	client, err := qc.NewClient(&qc.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant client: %w", err)
	}
	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("qdrant collection check: %w", err)
	}
	if !exists {
		if err := client.CreateCollection(ctx, &qc.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
				Size:     uint64(cfg.VectorDim),
				Distance: qc.Distance_Cosine,
			}),
		}); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("qdrant create collection: %w", err)
		}
		log.Info("Qdrant collection created", "collection", cfg.Collection, "vector_dim", cfg.VectorDim)
	}
	s := newVectorStore(log, client, cfg)
	return s, client.Close, nil
}

func newVectorStore(log *logger.Logger, api pointsAPI, cfg Config) *vectorStore {
	prefix := strings.TrimSpace(cfg.NamespacePrefix)
	if prefix == "" {
		prefix = "fluent"
	}
	return &vectorStore{
		log:        log.With("service", "QdrantVectorStore"),
		api:        api,
		collection: cfg.Collection,
		nsPrefix:   prefix,
		dim:        cfg.VectorDim,
	}
}

func (s *vectorStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	points := make([]*qc.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return fmt.Errorf("qdrant upsert: vector id is required")
		}
		if s.dim > 0 && len(v.Values) != s.dim {
			return fmt.Errorf("qdrant upsert: vector %q dimension mismatch: expected=%d got=%d", id, s.dim, len(v.Values))
		}
		payload := make(map[string]any, len(v.Metadata)+2)
		for k, val := range v.Metadata {
			payload[k] = payloadValue(val)
		}
		payload[payloadNamespaceKey] = ns
		payload[payloadVectorIDKey] = id
		points = append(points, &qc.PointStruct{
			Id:      qc.NewIDUUID(s.pointID(ns, id)),
			Vectors: qc.NewVectors(v.Values...),
			Payload: qc.NewValueMap(payload),
		})
	}
	wait := true
	if _, err := s.api.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *vectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	if len(q) == 0 {
		return nil, fmt.Errorf("qdrant query: vector required")
	}
	if topK <= 0 {
		topK = 10
	}
	f, err := s.scopedFilter(namespace, filter)
	if err != nil {
		return nil, err
	}
	limit := uint64(topK)
	points, err := s.api.Query(ctx, &qc.QueryPoints{
		CollectionName: s.collection,
		Query:          qc.NewQuery(q...),
		Filter:         f,
		Limit:          &limit,
		WithPayload: &qc.WithPayloadSelector{
			SelectorOptions: &qc.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]pinecone.VectorMatch, 0, len(points))
	for _, p := range points {
		meta := make(map[string]any, len(p.GetPayload()))
		id := ""
		for k, v := range p.GetPayload() {
			switch k {
			case payloadVectorIDKey:
				id = v.GetStringValue()
			case payloadNamespaceKey:
			default:
				meta[k] = fromValue(v)
			}
		}
		if id == "" {
			id = p.GetId().GetUuid()
		}
		out = append(out, pinecone.VectorMatch{ID: id, Score: float64(p.GetScore()), Metadata: meta})
	}
	return out, nil
}

func (s *vectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ns := s.qualifyNamespace(namespace)
	pids := make([]*qc.PointId, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, qc.NewIDUUID(s.pointID(ns, strings.TrimSpace(id))))
	}
	wait := true
	if _, err := s.api.Delete(ctx, &qc.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qc.NewPointsSelector(pids...),
	}); err != nil {
		return fmt.Errorf("qdrant delete ids: %w", err)
	}
	return nil
}

func (s *vectorStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	if len(filter) == 0 {
		return fmt.Errorf("refusing to delete with empty filter")
	}
	f, err := s.scopedFilter(namespace, filter)
	if err != nil {
		return err
	}
	wait := true
	if _, err := s.api.Delete(ctx, &qc.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qc.NewPointsSelectorFilter(f),
	}); err != nil {
		return fmt.Errorf("qdrant delete by filter: %w", err)
	}
	return nil
}

func (s *vectorStore) scopedFilter(namespace string, filter map[string]any) (*qc.Filter, error) {
	f, err := translateFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("qdrant filter: %w", err)
	}
	f.Must = append(f.Must, qc.NewMatch(payloadNamespaceKey, s.qualifyNamespace(namespace)))
	return f, nil
}

func (s *vectorStore) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}

// pointID is deterministic so DeleteIDs can address points without a lookup.
func (s *vectorStore) pointID(ns, id string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(ns+"|"+id)).String()
}

func payloadValue(v any) any {
	switch t := v.(type) {
	case string, bool, int, int64, float64:
		return t
	case float32:
		return float64(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func fromValue(v *qc.Value) any {
	switch k := v.GetKind().(type) {
	case *qc.Value_StringValue:
		return k.StringValue
	case *qc.Value_IntegerValue:
		return k.IntegerValue
	case *qc.Value_DoubleValue:
		return k.DoubleValue
	case *qc.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}
