package engine

import (
	"log/slog"
	"time"

	"github.com/jdziat/device-schedules/pkg/core"
)

// Option configures an Engine.
type Option interface {
	applyEngine(*Engine)
}

type optionFunc func(*Engine)

func (f optionFunc) applyEngine(e *Engine) { f(e) }

// WithClock sets the clock used for "now". Defaults to core.SystemClock.
func WithClock(c core.Clock) Option {
	return optionFunc(func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	})
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	})
}

// WithHorizon sets the default materialization horizon used by Materialize
// and Enable. A zero horizon keeps core.DefaultHorizon.
func WithHorizon(h core.Horizon) Option {
	return optionFunc(func(e *Engine) {
		if !h.IsZero() {
			e.horizon = h
		}
	})
}

// WithRecalculationLead sets how long before the last materialized execution
// the next pass becomes due. Negative values are ignored.
func WithRecalculationLead(d time.Duration) Option {
	return optionFunc(func(e *Engine) {
		if d >= 0 {
			e.recalcLead = d
		}
	})
}

// WithEvaluator sets the rule evaluator. Defaults to rule.NewEvaluator with
// the default occurrence cap.
func WithEvaluator(ev core.RuleEvaluator) Option {
	return optionFunc(func(e *Engine) {
		if ev != nil {
			e.evaluator = ev
		}
	})
}
