package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/auth"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/library"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/metrics"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	subjectContextKey = "activecaptain_subject"

	defaultUploadMaxBytes = 512 << 20
)

var (
	errMissingLibrary       = errors.New("library service dependency required")
	errMissingTokenManager  = errors.New("token validator dependency required")
	errMissingEvents        = errors.New("event subscriber dependency required")
	errMissingStagingDir    = errors.New("staging directory required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator returns the subject of a valid operator token.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// EventSubscriber streams library notifications.
type EventSubscriber interface {
	Subscribe(ctx context.Context) (<-chan notify.Event, func())
}

type Dependencies struct {
	Library        *library.Service
	Tokens         TokenValidator
	Events         EventSubscriber
	Gatherer       prometheus.Gatherer
	StagingDir     string
	UploadMaxBytes int64
	AllowedOrigins []string
	// WriteRateLimit caps mutating requests per token subject per second.
	// Zero disables the limit.
	WriteRateLimit float64
	WriteBurst     int
	// HeartbeatInterval spaces keep-alive frames on the event stream.
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// Handler serves the admin API. Close releases a sideload left open by a
// client so shutdown can close the library.
type Handler struct {
	router  *gin.Engine
	handler *httpHandler
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) Close() {
	h.handler.endSideload()
}

func NewHTTPHandler(deps Dependencies) (*Handler, error) {
	if deps.Library == nil {
		return nil, errMissingLibrary
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.Events == nil {
		return nil, errMissingEvents
	}
	if deps.StagingDir == "" {
		return nil, errMissingStagingDir
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	uploadMaxBytes := deps.UploadMaxBytes
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = defaultUploadMaxBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/events", "/metrics"})))

	handler := &httpHandler{
		library:        deps.Library,
		tokens:         deps.Tokens,
		events:         deps.Events,
		stagingDir:     deps.StagingDir,
		uploadMaxBytes: uploadMaxBytes,
		heartbeat:      heartbeat,
		writes:         newWriteLimiter(deps.WriteRateLimit, deps.WriteBurst),
		logger:         logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/status", handler.handleStatus)
	protected.GET("/events", handler.handleEventStream)

	protected.GET("/markers", handler.handleSearchMarkers)
	protected.GET("/markers/:id", handler.handleGetMarker)
	protected.GET("/markers/:id/reviews", handler.handleGetReviews)
	protected.GET("/markers/:id/summary", handler.handleGetReviewSummary)

	writes := protected.Group("/", handler.limitWrites)
	writes.POST("/markers/sync", handler.handleMarkerSync)
	writes.POST("/reviews/sync", handler.handleReviewSync)

	protected.GET("/tiles", handler.handleTilesInBbox)
	protected.GET("/tiles/:x/:y", handler.handleGetTile)
	writes.POST("/tiles/:x/:y/install", handler.handleInstallTile)
	writes.DELETE("/tiles/:x/:y", handler.handleDeleteTile)

	protected.POST("/sideload/begin", handler.handleBeginSideload)
	protected.POST("/sideload/end", handler.handleEndSideload)
	writes.DELETE("/database", handler.handleDeleteDatabase)

	return &Handler{router: router, handler: handler}, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

type httpHandler struct {
	library        *library.Service
	tokens         TokenValidator
	events         EventSubscriber
	stagingDir     string
	uploadMaxBytes int64
	heartbeat      time.Duration
	writes         *writeLimiter
	logger         *zap.Logger

	sideloadMu sync.Mutex
	sideload   *library.Sideload
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := auth.TokenFromRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMalformedAuthValue) {
			h.logger.Warn("authorization header rejected", zap.Error(err))
		} else {
			h.logger.Debug("request carried no token", zap.String("path", c.Request.URL.Path))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

// respondError maps a library failure onto an HTTP status and writes
// {"error": reason, "code": code}.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := statusForError(err)
	reason := "internal_error"
	code := ""
	var serviceErr *library.ServiceError
	if errors.As(err, &serviceErr) {
		reason = serviceErr.Reason()
		code = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("subject", c.GetString(subjectContextKey)),
			zap.Error(err))
	}
	body := gin.H{"error": reason}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, library.ErrEmptyBatch),
		errors.Is(err, model.ErrInvalidMarkerID),
		errors.Is(err, model.ErrTombstoneWithSections),
		errors.Is(err, model.ErrInvalidReviewID),
		errors.Is(err, model.ErrInvalidReviewMarker):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotOpen), errors.Is(err, store.ErrDatabaseMissing):
		return http.StatusConflict
	case errors.Is(err, store.ErrRejectedDatabase):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
