package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/fluent-backend/internal/http/handlers"
	httpMW "github.com/yungbote/fluent-backend/internal/http/middleware"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware

	SourceHandler    *httpH.SourceHandler
	ChatHandler      *httpH.ChatHandler
	DashboardHandler *httpH.DashboardHandler
	EventsHandler    *httpH.EventsHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Sources
		if cfg.SourceHandler != nil {
			protected.GET("/sources", cfg.SourceHandler.List)
			protected.POST("/sources/connections", cfg.SourceHandler.RegisterConnection)
			protected.POST("/sources/upload", cfg.SourceHandler.Upload)
			protected.GET("/sources/:id/profile", cfg.SourceHandler.Profile)
			protected.PUT("/sources/:id", cfg.SourceHandler.Rename)
			protected.DELETE("/sources/:id", cfg.SourceHandler.Delete)
			protected.POST("/sources/:id/test", cfg.SourceHandler.Test)
		}

		// Chat
		if cfg.ChatHandler != nil {
			protected.POST("/chat", cfg.ChatHandler.Send)
			protected.GET("/chat/history", cfg.ChatHandler.History)
		}

		// Dashboard
		if cfg.DashboardHandler != nil {
			protected.POST("/dashboard/pin", cfg.DashboardHandler.Pin)
			protected.GET("/dashboard", cfg.DashboardHandler.List)
			protected.DELETE("/dashboard/:id", cfg.DashboardHandler.Delete)
			protected.PUT("/dashboard/:id/refresh", cfg.DashboardHandler.Refresh)
		}

		// Realtime (SSE)
		if cfg.EventsHandler != nil {
			protected.GET("/events/stream", cfg.EventsHandler.Stream)
		}
	}

	return r
}
