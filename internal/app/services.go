package app

import (
	"database/sql"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/fluent-backend/internal/modules/ingest"
	"github.com/yungbote/fluent-backend/internal/modules/query"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/sqlengine"
	"github.com/yungbote/fluent-backend/internal/services"
)

type Services struct {
	Auth      services.AuthService
	Sources   services.SourceService
	Chat      services.ChatService
	Dashboard services.DashboardService
	Pipeline  *query.Pipeline
}

// wireServices builds the query pipeline over the application database, which
// doubles as the local engine for uploaded tables.
func wireServices(db *gorm.DB, local *sql.DB, log *logger.Logger, cfg Config, reposet Repos, clients *Clients) Services {
	log.Info("Wiring services...")

	llm := query.NewOpenAICompleter(clients.OpenAI)
	describer := ingest.NewDescriber(query.NewOpenAICompleter(clients.FastAI), log)

	catalog := services.NewSourceCatalog(log, reposet.Source, reposet.DataAsset, local, sqlengine.Postgres, cfg.ExternalConnectTimeout)
	retriever := services.NewVectorRetriever(log, clients.OpenAI, clients.Vectors)
	pipeline := query.NewPipeline(query.PipelineDeps{
		Log:       log,
		LLM:       llm,
		Catalog:   catalog,
		Retriever: retriever,
	})

	return Services{
		Auth: services.NewAuthService(db, log, reposet.User, cfg.JWTSecretKey, cfg.AccessTokenTTL),
		Sources: services.NewSourceService(services.SourceServiceDeps{
			DB:             db,
			Log:            log,
			Sources:        reposet.Source,
			Assets:         reposet.DataAsset,
			Describer:      describer,
			Embedder:       clients.OpenAI,
			Vectors:        clients.Vectors,
			Bucket:         clients.Bucket,
			Bus:            clients.Bus,
			Local:          local,
			LocalDialect:   sqlengine.Postgres,
			ConnectTimeout: cfg.ExternalConnectTimeout,
			HTTPClient:     &http.Client{Timeout: 60 * time.Second},
		}),
		Chat:      services.NewChatService(log, reposet.Conversation, pipeline),
		Dashboard: services.NewDashboardService(log, reposet.PinnedView, reposet.Source, pipeline, clients.Bus),
		Pipeline:  pipeline,
	}
}
