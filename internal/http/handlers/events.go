package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/fluent-backend/internal/http/response"
	"github.com/yungbote/fluent-backend/internal/platform/ctxutil"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/realtime"
)

type EventsHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewEventsHandler(log *logger.Logger, hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{log: log.With("handler", "EventsHandler"), hub: hub}
}

// GET /api/events/stream
func (h *EventsHandler) Stream(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	client := h.hub.Subscribe(userID)
	defer h.hub.Unsubscribe(client)
	h.log.Debug("SSE stream open", "user_id", userID, "client_id", client.ID)
	h.hub.Serve(c.Writer, c.Request, client)
	h.log.Debug("SSE stream closed", "user_id", userID, "client_id", client.ID)
}
