package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jdziat/device-schedules/pkg/core"
	"github.com/jdziat/device-schedules/pkg/engine"
	"github.com/jdziat/device-schedules/pkg/security"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	Due          int
	Materialized int
	Executions   int
	Exhausted    int
	Disabled     int
	Postponed    int
	Skipped      int
	Failed       int
}

// Worker periodically materializes schedules whose next calculation is due.
type Worker struct {
	engine  *engine.Engine
	config  WorkerConfig
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewWorker creates a new worker driving eng.
func NewWorker(eng *engine.Engine, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval:     DefaultPollInterval,
		BatchSize:        DefaultBatchSize,
		Concurrency:      DefaultConcurrency,
		DisableExhausted: true,
		EmptyRecheck:     DefaultEmptyRecheck,
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}

	w := &Worker{
		engine: eng,
		config: config,
		logger: config.Logger,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if config.RatePerSecond > 0 {
		burst := int(config.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}
	return w
}

// Config returns the effective configuration.
func (w *Worker) Config() WorkerConfig {
	return w.config
}

// Start sweeps immediately and then every PollInterval. Blocks until ctx is
// cancelled; a schedule already being materialized is finished first.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("sweeper started",
		"poll_interval", w.config.PollInterval,
		"batch_size", w.config.BatchSize,
		"concurrency", w.config.Concurrency,
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.sweep(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	report, err := w.SweepOnce(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error("sweep failed", "error", security.SanitizeErrorMessage(err.Error()))
		}
		return
	}
	if report.Due > 0 {
		w.logger.Info("sweep finished",
			"due", report.Due,
			"materialized", report.Materialized,
			"executions", report.Executions,
			"exhausted", report.Exhausted,
			"failed", report.Failed,
		)
	}
}

// SweepOnce materializes one batch of due schedules. Cancelling ctx stops
// the sweep between schedules and makes it return ctx.Err(); schedules
// already started run to completion.
func (w *Worker) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	due, err := w.dueWithRetry(ctx)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(w.config.Concurrency)

	for _, s := range due {
		if ctx.Err() != nil {
			break
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				break
			}
		}
		s := s
		g.Go(func() error {
			outcome := w.process(context.WithoutCancel(ctx), s)
			mu.Lock()
			outcome.addTo(&report)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report, ctx.Err()
}

// dueWithRetry loads due schedules with exponential backoff on failure.
func (w *Worker) dueWithRetry(ctx context.Context) ([]*core.Schedule, error) {
	var due []*core.Schedule
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		var loadErr error
		due, loadErr = w.engine.Storage().GetDueSchedules(ctx, w.engine.Now(), w.config.BatchSize)
		return core.StoreFailure("get due schedules", loadErr)
	})
	return due, err
}

type outcome struct {
	materialized bool
	executions   int
	exhausted    bool
	disabled     bool
	postponed    bool
	skipped      bool
	failed       bool
}

func (o outcome) addTo(r *SweepReport) {
	if o.materialized {
		r.Materialized++
	}
	r.Executions += o.executions
	if o.exhausted {
		r.Exhausted++
	}
	if o.disabled {
		r.Disabled++
	}
	if o.postponed {
		r.Postponed++
	}
	if o.skipped {
		r.Skipped++
	}
	if o.failed {
		r.Failed++
	}
}

func (w *Worker) process(ctx context.Context, s *core.Schedule) outcome {
	// Passes are transactional, so a pass that failed in storage is safe
	// to repeat.
	var m *core.Materialization
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		var passErr error
		m, passErr = w.engine.MaterializeWithin(ctx, s, w.config.Horizon)
		return passErr
	})
	switch {
	case err == nil:
		return outcome{materialized: true, executions: len(m.Executions)}
	case errors.Is(err, core.ErrEmptyRecurrence):
		return w.handleExhausted(ctx, s)
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrScheduleNotFound):
		// Disabled or deleted since it was picked up.
		w.logger.Debug("schedule skipped", "schedule_id", s.ID, "error", err)
		return outcome{skipped: true}
	default:
		w.logger.Error("materialization failed",
			"schedule_id", s.ID,
			"error", security.SanitizeErrorMessage(err.Error()),
		)
		return outcome{failed: true}
	}
}

// handleExhausted disables a schedule whose validity is over, or postpones
// one whose rule may still fire later.
func (w *Worker) handleExhausted(ctx context.Context, s *core.Schedule) outcome {
	now := w.engine.Now()
	result := outcome{exhausted: true}

	if w.config.DisableExhausted && s.DateEnd != nil && !s.DateEnd.After(now) {
		if err := w.engine.Disable(ctx, s); err != nil {
			w.logger.Error("failed to disable exhausted schedule", "schedule_id", s.ID, "error", err)
			result.failed = true
			return result
		}
		result.disabled = true
		return result
	}

	if err := w.engine.Postpone(ctx, s, now.Add(w.config.EmptyRecheck)); err != nil {
		if errors.Is(err, core.ErrInvalidState) {
			result.skipped = true
			return result
		}
		w.logger.Error("failed to postpone schedule", "schedule_id", s.ID, "error", err)
		result.failed = true
		return result
	}
	result.postponed = true
	return result
}
