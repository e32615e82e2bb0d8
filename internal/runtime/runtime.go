package runtime

import (
	"context"
	"time"

	"github.com/vinodismyname/mcpconc/config"
	"golang.org/x/sync/semaphore"
)

// Limits captures the concurrency and dataset guardrails configured for the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int
	MaxOpenDatasets       int

	// Row and paging bounds
	MaxRowsPerOp    int
	DefaultPageSize int
	MaxPageSize     int

	// Timeouts
	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
}

// NewLimits initializes Limits with sensible fallbacks when values are unset.
func NewLimits(maxConcurrentRequests, maxOpenDatasets int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if maxOpenDatasets <= 0 {
		maxOpenDatasets = config.DefaultMaxOpenDatasets
	}

	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		MaxOpenDatasets:       maxOpenDatasets,
		MaxRowsPerOp:          config.DefaultMaxRowsPerOp,
		DefaultPageSize:       config.DefaultPageSize,
		MaxPageSize:           config.MaxPageSize,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
	}
}

// LimitsFromSettings converts loaded settings into Limits, keeping defaults
// for unset fields.
func LimitsFromSettings(s config.LimitSettings) Limits {
	l := NewLimits(s.MaxConcurrentRequests, s.MaxOpenDatasets)
	if s.MaxRowsPerOp > 0 {
		l.MaxRowsPerOp = s.MaxRowsPerOp
	}
	if s.DefaultPageSize > 0 {
		l.DefaultPageSize = s.DefaultPageSize
	}
	if s.MaxPageSize > 0 {
		l.MaxPageSize = s.MaxPageSize
	}
	if s.OperationTimeout > 0 {
		l.OperationTimeout = s.OperationTimeout
	}
	if s.AcquireRequestTimeout > 0 {
		l.AcquireRequestTimeout = s.AcquireRequestTimeout
	}
	return l
}

// PageSize clamps a requested page size into [1, MaxPageSize]; zero selects the default.
func (l Limits) PageSize(requested int) int {
	if requested <= 0 {
		requested = l.DefaultPageSize
	}
	if requested <= 0 {
		requested = config.DefaultPageSize
	}
	if l.MaxPageSize > 0 && requested > l.MaxPageSize {
		return l.MaxPageSize
	}
	return requested
}

// Controller coordinates runtime semaphores for request and dataset guardrails.
type Controller struct {
	limits           Limits
	requestSemaphore *semaphore.Weighted
	datasetSemaphore *semaphore.Weighted
}

// NewController constructs a Controller backed by weighted semaphores.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:           limits,
		requestSemaphore: semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		datasetSemaphore: semaphore.NewWeighted(int64(limits.MaxOpenDatasets)),
	}
}

// AcquireRequest reserves capacity for an incoming request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// AcquireDataset reserves an open dataset slot. It fails fast when the cache is
// full so callers can close a dataset instead of waiting.
func (c *Controller) AcquireDataset(ctx context.Context) error {
	if c.datasetSemaphore.TryAcquire(1) {
		return nil
	}
	return ErrDatasetLimit
}

// ReleaseDataset frees an open dataset slot.
func (c *Controller) ReleaseDataset() {
	c.datasetSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
