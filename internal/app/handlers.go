package app

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	fluenthttp "github.com/yungbote/fluent-backend/internal/http"
	httpH "github.com/yungbote/fluent-backend/internal/http/handlers"
	httpMW "github.com/yungbote/fluent-backend/internal/http/middleware"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Auth      *httpH.AuthHandler
	Sources   *httpH.SourceHandler
	Chat      *httpH.ChatHandler
	Dashboard *httpH.DashboardHandler
	Events    *httpH.EventsHandler
}

func wireHandlers(log *logger.Logger, local *sql.DB, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(local),
		Auth:      httpH.NewAuthHandler(services.Auth),
		Sources:   httpH.NewSourceHandler(log, services.Sources),
		Chat:      httpH.NewChatHandler(services.Chat),
		Dashboard: httpH.NewDashboardHandler(services.Dashboard),
		Events:    httpH.NewEventsHandler(log, hub),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *fluenthttp.Server {
	serviceName := ""
	if cfg.OtelEnabled {
		serviceName = cfg.OtelServiceName
	}
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	return fluenthttp.NewServer(fluenthttp.RouterConfig{
		Log:              log,
		ServiceName:      serviceName,
		AllowedOrigins:   cfg.AllowedOrigins,
		HealthHandler:    handlers.Health,
		AuthHandler:      handlers.Auth,
		AuthMiddleware:   middleware.Auth,
		SourceHandler:    handlers.Sources,
		ChatHandler:      handlers.Chat,
		DashboardHandler: handlers.Dashboard,
		EventsHandler:    handlers.Events,
	})
}
