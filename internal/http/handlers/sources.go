package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/fluent-backend/internal/http/response"
	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/services"
)

// multipart framing allowance on top of the file itself
const uploadOverhead = 1 << 20

type SourceHandler struct {
	log     *logger.Logger
	sources services.SourceService
}

func NewSourceHandler(log *logger.Logger, sources services.SourceService) *SourceHandler {
	return &SourceHandler{log: log.With("handler", "SourceHandler"), sources: sources}
}

// GET /api/sources
func (h *SourceHandler) List(c *gin.Context) {
	list, err := h.sources.List(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sources": list})
}

// GET /api/sources/:id/profile
func (h *SourceHandler) Profile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	profile, err := h.sources.Profile(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, profile)
}

// POST /api/sources/connections
func (h *SourceHandler) RegisterConnection(c *gin.Context) {
	var req services.ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	src, err := h.sources.RegisterConnection(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"source": src})
}

// POST /api/sources/upload (multipart field "file")
func (h *SourceHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxUploadBytes+uploadOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("upload exceeds %d bytes", services.MaxUploadBytes))
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("multipart field \"file\" is required: %w", err))
		return
	}
	if header.Size > services.MaxUploadBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("upload exceeds %d bytes", services.MaxUploadBytes))
		return
	}
	f, err := header.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	res, err := h.sources.Upload(c.Request.Context(), header.Filename, data)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, res)
}

// PUT /api/sources/:id
func (h *SourceHandler) Rename(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	src, err := h.sources.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"source": src})
}

// DELETE /api/sources/:id
func (h *SourceHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.sources.Delete(c.Request.Context(), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/sources/:id/test
func (h *SourceHandler) Test(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.sources.Test(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
