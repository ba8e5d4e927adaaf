package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"
	"time"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/pinecone"
	"github.com/yungbote/fluent-backend/internal/platform/qdrant"
)

var (
	newPineconeClient      = pinecone.New
	newPineconeVectorStore = pinecone.NewVectorStore
	newQdrantVectorStore   = qdrant.NewVectorStore
)

type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderQdrant   VectorProvider = "qdrant"
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantHost   VectorProviderBootstrapErrorCode = "missing_qdrant_host"
	VectorProviderBootstrapErrorInvalidQdrantPort   VectorProviderBootstrapErrorCode = "invalid_qdrant_port"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed  VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the configured index backend. A Pinecone setup
// without an API key yields a nil store: uploads of documents are then
// rejected and RAG answers report that nothing was found.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (pinecone.VectorStore, func() error, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.VectorProvider))
	log.Info("Selecting vector store provider", "provider", provider)

	switch VectorProvider(provider) {
	case VectorProviderQdrant:
		vs, closeFn, err := newQdrantVectorStore(ctx, log, qdrant.Config{
			Host:            strings.TrimSpace(cfg.QdrantHost),
			Port:            cfg.QdrantPort,
			APIKey:          strings.TrimSpace(cfg.QdrantAPIKey),
			UseTLS:          cfg.QdrantUseTLS,
			Collection:      strings.TrimSpace(cfg.QdrantCollection),
			NamespacePrefix: strings.TrimSpace(cfg.PineconeNamespacePrefix),
			VectorDim:       cfg.QdrantVectorDim,
		})
		if err != nil {
			return nil, nil, bootstrapFailed(log, provider, err)
		}
		return instrumentVectorStore(log, provider, vs), closeFn, nil

	case VectorProviderPinecone:
		apiKey := strings.TrimSpace(cfg.PineconeAPIKey)
		if apiKey == "" {
			log.Warn("PINECONE_API_KEY not set; vector search disabled")
			return nil, nil, nil
		}
		pc, err := newPineconeClient(log, pinecone.Config{APIKey: apiKey, Timeout: 30 * time.Second})
		if err != nil {
			return nil, nil, bootstrapFailed(log, provider, err)
		}
		vs, err := newPineconeVectorStore(ctx, log, pc, pinecone.StoreConfig{
			IndexName:       strings.TrimSpace(cfg.PineconeIndexName),
			IndexHost:       strings.TrimSpace(cfg.PineconeIndexHost),
			NamespacePrefix: strings.TrimSpace(cfg.PineconeNamespacePrefix),
		})
		if err != nil {
			return nil, nil, bootstrapFailed(log, provider, err)
		}
		return instrumentVectorStore(log, provider, vs), nil, nil

	default:
		err := &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
		log.Error("Vector store provider selection failed", "provider", provider, "error_code", err.Code, "error", err)
		return nil, nil, err
	}
}

func bootstrapFailed(log *logger.Logger, provider string, err error) error {
	classified := classifyVectorProviderBootstrapError(provider, err)
	log.Error(
		"Vector store provider bootstrap failed",
		"provider", provider,
		"error_code", classified.Code,
		"error", classified,
	)
	return classified
}

func classifyVectorProviderBootstrapError(provider string, err error) *VectorProviderBootstrapError {
	wrap := func(code VectorProviderBootstrapErrorCode) *VectorProviderBootstrapError {
		return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
	}

	var urlErr *neturl.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingHost:
			return wrap(VectorProviderBootstrapErrorMissingQdrantHost)
		case qdrant.ConfigErrorInvalidPort:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantPort)
		case qdrant.ConfigErrorMissingCollection:
			return wrap(VectorProviderBootstrapErrorMissingQdrantColl)
		case qdrant.ConfigErrorInvalidVectorDim:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantVector)
		}
	}
	return wrap(VectorProviderBootstrapErrorProviderInitFailed)
}
