// Package library implements the tile merge/update engine over the library
// store together with the read surface served to clients.
package library

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/metrics"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/MarcoPoloResearchLab/activecaptain/internal/store"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

var (
	// ErrEmptyBatch indicates an apply called without records.
	ErrEmptyBatch = errors.New("library: batch is empty")

	errMissingStore = errors.New("store is required")
	noOpLogger      = zap.NewNop()
)

const (
	DefaultMergePageSize    = 100
	DefaultSummaryCacheSize = 1024
	DefaultSummaryCacheTTL  = 10 * time.Minute
)

const (
	opServiceNew                = "library.service.new"
	opApplyMarkerUpdate         = "library.apply_marker_update"
	opApplyReviewUpdate         = "library.apply_review_update"
	opApplySupportTableUpdate   = "library.apply_support_table_update"
	opInstallSingleTileDatabase = "library.install_single_tile_database"
	opMergeSingleTileDatabase   = "library.merge_single_tile_database"
	opDeleteTile                = "library.delete_tile"
	opOpenDatabase              = "library.open_database"
	opDeleteDatabase            = "library.delete_database"
	opBeginSideload             = "library.begin_sideload"
	opRead                      = "library.read"
)

const (
	kindMarker  = "marker"
	kindReview  = "review"
	kindSupport = "support"
)

type ServiceError struct {
	operation string
	reason    string
	err       error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.Code()
	}
	return fmt.Sprintf("%s: %v", e.Code(), e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code is "<operation>.<reason>".
func (e *ServiceError) Code() string {
	return fmt.Sprintf("%s.%s", e.operation, e.reason)
}

func (e *ServiceError) Reason() string {
	return e.reason
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{operation: operation, reason: reason, err: cause}
}

type Config struct {
	Store     *store.Store
	Publisher notify.Publisher
	Metrics   *metrics.Recorder
	// MergePageSize bounds the markers applied per merge transaction.
	MergePageSize    int
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration
	Logger           *zap.Logger
}

// Service is the merge/update engine. Every method is safe for concurrent
// use; writes serialize on the store gate.
type Service struct {
	// installMu serialises tile installs, merges and library deletes.
	installMu sync.Mutex

	store         *store.Store
	publisher     notify.Publisher
	metrics       *metrics.Recorder
	mergePageSize int
	summaries     *expirable.LRU[int64, model.ReviewSummary]
	logger        *zap.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = notify.Discard
	}
	pageSize := cfg.MergePageSize
	if pageSize <= 0 {
		pageSize = DefaultMergePageSize
	}
	cacheSize := cfg.SummaryCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultSummaryCacheSize
	}
	cacheTTL := cfg.SummaryCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultSummaryCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:         cfg.Store,
		publisher:     publisher,
		metrics:       cfg.Metrics,
		mergePageSize: pageSize,
		summaries:     expirable.NewLRU[int64, model.ReviewSummary](cacheSize, nil, cacheTTL),
		logger:        logger,
	}, nil
}

// Store returns the library store the service writes to.
func (s *Service) Store() *store.Store {
	return s.store
}

// fail logs and returns err as a ServiceError. A ServiceError raised inside a
// transaction keeps its own reason.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.operation == operation {
		s.logError(operation, serviceErr.reason, serviceErr.err, fields...)
		return serviceErr
	}
	switch {
	case errors.Is(err, store.ErrNotOpen):
		reason = "not_open"
	case errors.Is(err, store.ErrRejectedDatabase):
		reason = "rejected"
	}
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("library service error", attrs...)
}
