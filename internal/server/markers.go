package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 500
	maxSearchLimit     = 5000
)

var (
	errIncompleteBoundingBox = errors.New("sw_lat, sw_lon, ne_lat and ne_lon must be given together")
	errInvalidMarkerID       = errors.New("marker id must be a positive integer")
)

type markerSyncRequest struct {
	Tile    *tilePayload         `json:"tile"`
	Markers []model.MarkerRecord `json:"markers"`
}

type reviewSyncRequest struct {
	Tile    *tilePayload         `json:"tile"`
	Reviews []model.ReviewRecord `json:"reviews"`
}

type syncResponsePayload struct {
	Applied int          `json:"applied"`
	Tile    *tilePayload `json:"tile,omitempty"`
}

type markerListPayload struct {
	Markers []model.Marker `json:"markers"`
	Count   int            `json:"count"`
}

func (h *httpHandler) handleSearchMarkers(c *gin.Context) {
	filter, err := parseMarkerFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}
	markers, err := h.library.SearchMarkers(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if markers == nil {
		markers = []model.Marker{}
	}
	c.JSON(http.StatusOK, markerListPayload{Markers: markers, Count: len(markers)})
}

func (h *httpHandler) handleGetMarker(c *gin.Context) {
	id, ok := markerIDParam(c)
	if !ok {
		return
	}
	record, found, err := h.library.GetMarker(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "marker_not_found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleGetReviews(c *gin.Context) {
	id, ok := markerIDParam(c)
	if !ok {
		return
	}
	reviews, err := h.library.GetReviews(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if reviews == nil {
		reviews = []model.ReviewRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (h *httpHandler) handleGetReviewSummary(c *gin.Context) {
	id, ok := markerIDParam(c)
	if !ok {
		return
	}
	summary, err := h.library.GetReviewSummary(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	summary.MarkerID = id
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleMarkerSync(c *gin.Context) {
	var request markerSyncRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tile, ok := optionalTile(c, request.Tile)
	if !ok {
		return
	}
	if err := h.library.ApplyMarkerUpdate(c.Request.Context(), request.Markers, tile); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("marker batch applied",
		zap.String("subject", c.GetString(subjectContextKey)),
		zap.Int("records", len(request.Markers)))
	c.JSON(http.StatusOK, syncResponsePayload{Applied: len(request.Markers), Tile: request.Tile})
}

func (h *httpHandler) handleReviewSync(c *gin.Context) {
	var request reviewSyncRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tile, ok := optionalTile(c, request.Tile)
	if !ok {
		return
	}
	if err := h.library.ApplyReviewUpdate(c.Request.Context(), request.Reviews, tile); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("review batch applied",
		zap.String("subject", c.GetString(subjectContextKey)),
		zap.Int("records", len(request.Reviews)))
	c.JSON(http.StatusOK, syncResponsePayload{Applied: len(request.Reviews), Tile: request.Tile})
}

func markerIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": errInvalidMarkerID.Error()})
		return 0, false
	}
	return id, true
}

func optionalTile(c *gin.Context, payload *tilePayload) (*geo.Tile, bool) {
	if payload == nil {
		return nil, true
	}
	tile, err := geo.NewTile(payload.X, payload.Y)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tile", "detail": err.Error()})
		return nil, false
	}
	return &tile, true
}

func parseMarkerFilter(c *gin.Context) (repository.MarkerFilter, error) {
	filter := repository.MarkerFilter{Limit: defaultSearchLimit}

	box, err := parseOptionalBoundingBox(c)
	if err != nil {
		return filter, err
	}
	filter.BoundingBox = box

	if raw := c.Query("filter"); raw != "" {
		mask, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.SearchFilter = mask
	}
	for _, value := range c.QueryArray("type") {
		for _, code := range strings.Split(value, ",") {
			if code = strings.TrimSpace(code); code != "" {
				filter.Types = append(filter.Types, code)
			}
		}
	}
	filter.NameContains = strings.TrimSpace(c.Query("name"))
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(limit, maxSearchLimit)
	}
	return filter, nil
}

// parseOptionalBoundingBox reads sw_lat, sw_lon, ne_lat and ne_lon. A box
// whose west edge is east of its east edge crosses the antimeridian.
func parseOptionalBoundingBox(c *gin.Context) (*geo.BoundingBox, error) {
	keys := []string{"sw_lat", "sw_lon", "ne_lat", "ne_lon"}
	values := make([]float64, len(keys))
	present := 0
	for index, key := range keys {
		raw, ok := c.GetQuery(key)
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		values[index] = value
		present++
	}
	switch present {
	case 0:
		return nil, nil
	case len(keys):
	default:
		return nil, errIncompleteBoundingBox
	}
	box, err := geo.NewBoundingBox(
		geo.Coordinate{Lat: values[0], Lon: values[1]},
		geo.Coordinate{Lat: values[2], Lon: values[3]},
	)
	if err != nil {
		return nil, err
	}
	return &box, nil
}
