package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/device-schedules/pkg/core"
	"github.com/jdziat/device-schedules/pkg/security"
)

// Defaults for a Worker.
const (
	DefaultPollInterval = time.Minute
	DefaultBatchSize    = 100
	DefaultConcurrency  = 4
	DefaultEmptyRecheck = 24 * time.Hour
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int

	// RatePerSecond limits how many schedules are started per second.
	// Zero means unlimited.
	RatePerSecond float64

	// Horizon overrides the engine's default horizon when set.
	Horizon core.Horizon

	// DisableExhausted disables schedules whose validity end has passed and
	// whose rule produced nothing. Otherwise they are postponed.
	DisableExhausted bool

	// EmptyRecheck is how far an exhausted schedule is postponed.
	EmptyRecheck time.Duration

	StorageRetry *RetryConfig
	Logger       *slog.Logger
}

// PollInterval sets how often the worker looks for due schedules.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// BatchSize sets how many due schedules one sweep picks up.
func BatchSize(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if n > 0 {
			c.BatchSize = n
		}
	})
}

// Concurrency sets how many schedules are materialized in parallel.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// RateLimit caps the number of schedules started per second.
func RateLimit(perSecond float64) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if perSecond >= 0 {
			c.RatePerSecond = perSecond
		}
	})
}

// WithHorizon sets the horizon used for each materialization.
func WithHorizon(h core.Horizon) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Horizon = h
	})
}

// DisableExhausted controls whether schedules past their validity end are
// disabled once their rule runs dry.
func DisableExhausted(enabled bool) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DisableExhausted = enabled
	})
}

// EmptyRecheck sets how long an exhausted, still valid schedule is postponed.
func EmptyRecheck(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.EmptyRecheck = d
		}
	})
}

// WithStorageRetry sets the retry policy for store reads.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithRetryAttempts keeps the default retry policy with a different attempt count.
func WithRetryAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		if n < 1 {
			n = 1
		}
		cfg.MaxAttempts = n
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes every store read a single attempt.
func DisableRetry() WorkerOption {
	return WithRetryAttempts(1)
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}
