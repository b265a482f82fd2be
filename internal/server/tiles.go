package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/database"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const uploadFormField = "file"

type tileStatePayload struct {
	model.TileLastUpdate
	Known bool `json:"known"`
}

type installResponsePayload struct {
	Tile             tilePayload `json:"tile"`
	InstalledVersion string      `json:"installed_version"`
}

func (h *httpHandler) handleGetTile(c *gin.Context) {
	tile, ok := tileParams(c)
	if !ok {
		return
	}
	row, found, err := h.library.GetTileLastUpdate(c.Request.Context(), tile)
	if err != nil {
		h.respondError(c, err)
		return
	}
	row.TileX, row.TileY = tile.X, tile.Y
	c.JSON(http.StatusOK, tileStatePayload{TileLastUpdate: row, Known: found})
}

func (h *httpHandler) handleTilesInBbox(c *gin.Context) {
	box, err := parseOptionalBoundingBox(c)
	if err == nil && box == nil {
		err = errIncompleteBoundingBox
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}
	rows, err := h.library.GetTileLastUpdatesInBbox(c.Request.Context(), *box)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tiles := make([]model.TileLastUpdate, 0, len(rows))
	for _, row := range rows {
		tiles = append(tiles, row)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].TileX != tiles[j].TileX {
			return tiles[i].TileX < tiles[j].TileX
		}
		return tiles[i].TileY < tiles[j].TileY
	})
	c.JSON(http.StatusOK, gin.H{"tiles": tiles})
}

// handleInstallTile stages the uploaded tile database under a fresh name and
// installs it. The install consumes the staged file.
func (h *httpHandler) handleInstallTile(c *gin.Context) {
	tile, ok := tileParams(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploadMaxBytes)
	upload, err := c.FormFile(uploadFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload_too_large", "limit": humanize.IBytes(uint64(h.uploadMaxBytes))})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}

	name, err := uuid.NewV7()
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := os.MkdirAll(h.stagingDir, 0o755); err != nil {
		h.respondError(c, err)
		return
	}
	stagedPath := filepath.Join(h.stagingDir, name.String()+".db")
	if err := c.SaveUploadedFile(upload, stagedPath); err != nil {
		h.respondError(c, err)
		return
	}
	defer func() {
		if removeErr := database.RemoveWithSidecars(stagedPath); removeErr != nil {
			h.logger.Warn("staged upload not removed", zap.String("file", stagedPath), zap.Error(removeErr))
		}
	}()

	h.logger.Info("tile upload staged",
		zap.String("subject", c.GetString(subjectContextKey)),
		zap.Stringer("tile", tile),
		zap.String("file", stagedPath),
		zap.String("size", humanize.Bytes(uint64(upload.Size))))

	if err := h.library.InstallSingleTileDatabase(c.Request.Context(), stagedPath, tile); err != nil {
		h.respondError(c, err)
		return
	}
	installed, _ := h.library.InstalledVersion()
	c.JSON(http.StatusOK, installResponsePayload{
		Tile:             tilePayload{X: tile.X, Y: tile.Y},
		InstalledVersion: installed.String(),
	})
}

func (h *httpHandler) handleDeleteTile(c *gin.Context) {
	tile, ok := tileParams(c)
	if !ok {
		return
	}
	if err := h.library.DeleteTile(c.Request.Context(), tile); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("tile deleted by operator",
		zap.String("subject", c.GetString(subjectContextKey)),
		zap.Stringer("tile", tile))
	c.Status(http.StatusNoContent)
}

func tileParams(c *gin.Context) (geo.Tile, bool) {
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tile"})
		return geo.Tile{}, false
	}
	tile, err := geo.NewTile(x, y)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tile", "detail": err.Error()})
		return geo.Tile{}, false
	}
	return tile, true
}
