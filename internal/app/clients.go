package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/objectstore"
	"github.com/yungbote/fluent-backend/internal/platform/openai"
	"github.com/yungbote/fluent-backend/internal/platform/pinecone"
	"github.com/yungbote/fluent-backend/internal/realtime"
)

type Clients struct {
	// OpenAI drives routing, selection, synthesis and answers; FastAI writes descriptions.
	OpenAI  openai.Client
	FastAI  openai.Client
	Vectors pinecone.VectorStore
	Bucket  objectstore.BucketService
	Bus     realtime.Bus

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	// OpenAI
	ai, err := openai.NewClient(log, openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		EmbedModel: cfg.OpenAIEmbedModel,
		Timeout:    cfg.OpenAITimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	c.OpenAI = ai
	c.FastAI = openai.WithModel(ai, cfg.OpenAIFastModel)

	// Vector index
	vectors, closeVectors, err := resolveVectorStore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	c.Vectors = vectors
	if closeVectors != nil {
		c.closers = append(c.closers, closeVectors)
	}

	// Object storage
	bucket, err := resolveBucketService(ctx, log, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Bucket = bucket

	// Event bus
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		bus, err := realtime.NewRedisBus(ctx, log, realtime.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		c.Bus = bus
	} else {
		log.Info("REDIS_ADDR not set; using in-process event bus")
		c.Bus = realtime.NewLocalBus()
	}
	c.closers = append(c.closers, c.Bus.Close)

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
