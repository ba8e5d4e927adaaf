package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/fluent-backend/internal/http/response"
	"github.com/yungbote/fluent-backend/internal/services"
)

const defaultHistoryLimit = 50

type ChatHandler struct {
	chat services.ChatService
}

func NewChatHandler(chat services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// POST /api/chat
func (h *ChatHandler) Send(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	reply, err := h.chat.Send(c.Request.Context(), req.Message)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, reply)
}

// GET /api/chat/history?limit=50
func (h *ChatHandler) History(c *gin.Context) {
	turns, err := h.chat.History(c.Request.Context(), queryInt(c, "limit", defaultHistoryLimit))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"turns": turns})
}
