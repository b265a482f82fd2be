package server

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type statusPayload struct {
	Installed      bool   `json:"installed"`
	Path           string `json:"path"`
	Version        string `json:"version,omitempty"`
	FileSizeBytes  int64  `json:"file_size_bytes"`
	FileSize       string `json:"file_size"`
	MarkerCount    int64  `json:"marker_count"`
	TileCount      int    `json:"tile_count"`
	SideloadActive bool   `json:"sideload_active"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	status, err := h.library.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := statusPayload{
		Installed:      status.Installed,
		Path:           status.Path,
		FileSizeBytes:  status.FileSizeBytes,
		FileSize:       humanize.Bytes(uint64(status.FileSizeBytes)),
		MarkerCount:    status.MarkerCount,
		TileCount:      status.TileCount,
		SideloadActive: h.sideloadActive(),
	}
	if status.Installed {
		payload.Version = status.Version.String()
	}
	c.JSON(http.StatusOK, payload)
}

// handleBeginSideload checkpoints the library and holds writers off until
// /sideload/end. Only one sideload may be held at a time.
func (h *httpHandler) handleBeginSideload(c *gin.Context) {
	h.sideloadMu.Lock()
	defer h.sideloadMu.Unlock()
	if h.sideload != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "sideload_active", "path": h.sideload.Path()})
		return
	}
	sideload, err := h.library.BeginSideload(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.sideload = sideload
	h.logger.Info("sideload started",
		zap.String("subject", c.GetString(subjectContextKey)),
		zap.String("path", sideload.Path()))
	c.JSON(http.StatusOK, gin.H{"path": sideload.Path()})
}

func (h *httpHandler) handleEndSideload(c *gin.Context) {
	if !h.endSideload() {
		c.JSON(http.StatusConflict, gin.H{"error": "no_sideload"})
		return
	}
	h.logger.Info("sideload ended", zap.String("subject", c.GetString(subjectContextKey)))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteDatabase(c *gin.Context) {
	if h.sideloadActive() {
		c.JSON(http.StatusConflict, gin.H{"error": "sideload_active"})
		return
	}
	if err := h.library.DeleteDatabase(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Warn("library database deleted by operator", zap.String("subject", c.GetString(subjectContextKey)))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) endSideload() bool {
	h.sideloadMu.Lock()
	defer h.sideloadMu.Unlock()
	if h.sideload == nil {
		return false
	}
	h.sideload.End()
	h.sideload = nil
	return true
}

func (h *httpHandler) sideloadActive() bool {
	h.sideloadMu.Lock()
	defer h.sideloadMu.Unlock()
	return h.sideload != nil
}
