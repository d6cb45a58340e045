package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/device-schedules/pkg/core"
	"github.com/jdziat/device-schedules/pkg/rule"
	"github.com/jdziat/device-schedules/pkg/security"
)

// DefaultRecalculationLead is how long before the last materialized execution
// the next materialization pass becomes due.
const DefaultRecalculationLead = 2 * core.Day

// DefaultContextSize is the number of past executions FindClosestExecutions
// returns when asked for the default window.
const DefaultContextSize = 3

// ruleValidator is implemented by evaluators that can check a rule without
// expanding it.
type ruleValidator interface {
	Validate(rule string) error
}

// Engine materializes executions for schedules and drives their lifecycle.
type Engine struct {
	store      core.Storage
	evaluator  core.RuleEvaluator
	clock      core.Clock
	logger     *slog.Logger
	horizon    core.Horizon
	recalcLead time.Duration

	locks scheduleLocks

	mu        sync.RWMutex
	eventSubs []chan core.Event
}

// New creates an Engine backed by store.
func New(store core.Storage, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		evaluator:  rule.NewEvaluator(rule.DefaultMaxOccurrences),
		clock:      core.SystemClock,
		logger:     slog.Default(),
		horizon:    core.DefaultHorizon,
		recalcLead: DefaultRecalculationLead,
	}
	for _, opt := range opts {
		opt.applyEngine(e)
	}
	return e
}

// Storage returns the storage the engine works on.
func (e *Engine) Storage() core.Storage {
	return e.store
}

// Horizon returns the default materialization horizon.
func (e *Engine) Horizon() core.Horizon {
	return e.horizon
}

// Now returns the current instant in UTC according to the engine's clock.
func (e *Engine) Now() time.Time {
	return e.clock.Now().UTC()
}

// Create validates s and stores it disabled. The owner is loaded when s
// carries only a UserID so its time zone can be checked.
func (e *Engine) Create(ctx context.Context, s *core.Schedule) error {
	if s.User == nil && s.UserID != "" {
		owner, err := e.store.GetUser(ctx, s.UserID)
		if err != nil {
			return core.StoreFailure("get user", err)
		}
		s.User = owner
	}
	if err := security.ValidateSchedule(s); err != nil {
		return err
	}
	if v, ok := e.evaluator.(ruleValidator); ok {
		if err := v.Validate(s.TimeExpression); err != nil {
			return err
		}
	}

	s.Enabled = false
	s.NextCalculationDate = nil
	if err := e.store.CreateSchedule(ctx, s); err != nil {
		return core.StoreFailure("create schedule", err)
	}
	return nil
}

// Materialize extends the executions of an enabled schedule up to the
// engine's default horizon. See MaterializeWithin.
func (e *Engine) Materialize(ctx context.Context, s *core.Schedule) (*core.Materialization, error) {
	return e.MaterializeWithin(ctx, s, e.horizon)
}

// MaterializeWithin stores every occurrence of s between its continuation
// point and the earlier of h and the validity end, and moves the next
// calculation date to the last stored occurrence minus the recalculation
// lead. Executions and schedule are written in one transaction.
//
// It returns an error wrapping core.ErrInvalidState when s is disabled and
// core.ErrEmptyRecurrence when the window holds no occurrence; in both cases
// nothing is written. On success s is refreshed from storage.
func (e *Engine) MaterializeWithin(ctx context.Context, s *core.Schedule, h core.Horizon) (*core.Materialization, error) {
	if h.IsZero() {
		h = e.horizon
	}
	unlock := e.locks.lock(s.ID)
	defer unlock()

	var (
		result *core.Materialization
		fresh  *core.Schedule
	)
	err := e.store.Transaction(ctx, func(tx core.Storage) error {
		current, err := e.load(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		if !current.Enabled {
			return fmt.Errorf("%w: schedule %s is disabled", core.ErrInvalidState, s.ID)
		}
		result, err = e.materialize(ctx, tx, current, h)
		fresh = current
		return err
	})
	if err != nil {
		e.materializeFailed(s, result, err)
		return nil, classify("materialize", err)
	}

	*s = *fresh
	e.materialized(s, result)
	return result, nil
}

// NextRunDates previews up to count occurrences MaterializeWithin would
// store for s, without writing anything. A count of core.Unbounded returns
// the whole window.
func (e *Engine) NextRunDates(ctx context.Context, s *core.Schedule, h core.Horizon, count int) ([]time.Time, error) {
	if h.IsZero() {
		h = e.horizon
	}
	from, until, err := e.bounds(ctx, e.store, s, h)
	if err != nil {
		return nil, err
	}
	if !from.Before(until) {
		return nil, nil
	}
	occurrences, err := e.occurrences(s, from, until, count)
	if err != nil {
		return nil, core.EvaluatorFailure(s.TimeExpression, err)
	}
	return checkWindow(s.TimeExpression, occurrences, from, until)
}

// FindClosestExecutions returns up to contextSize executions before now,
// oldest first, and up to contextSize+1 executions at or after now, soonest
// first. It never writes.
func (e *Engine) FindClosestExecutions(ctx context.Context, s *core.Schedule, contextSize int) (*core.ExecutionWindow, error) {
	contextSize = security.ClampContextSize(contextSize)
	now := e.Now()

	future, err := e.store.NearestExecutions(ctx, s.ID, now, core.AtOrAfter, contextSize+1)
	if err != nil {
		return nil, core.StoreFailure("nearest executions", err)
	}
	past, err := e.store.NearestExecutions(ctx, s.ID, now, core.Before, contextSize)
	if err != nil {
		return nil, core.StoreFailure("nearest executions", err)
	}
	for i, j := 0, len(past)-1; i < j; i, j = i+1, j-1 {
		past[i], past[j] = past[j], past[i]
	}

	if future == nil {
		future = []core.ScheduledExecution{}
	}
	if past == nil {
		past = []core.ScheduledExecution{}
	}
	return &core.ExecutionWindow{Past: past, Future: future}, nil
}

// Enable switches s on and materializes it with the default horizon.
//
// A schedule that is already enabled and still has executions is left
// alone and (nil, nil) is returned; one that has run dry is materialized
// again. When the window holds no occurrence the whole call is rolled back,
// s stays disabled and the error wraps core.ErrEmptyRecurrence.
func (e *Engine) Enable(ctx context.Context, s *core.Schedule) (*core.Materialization, error) {
	unlock := e.locks.lock(s.ID)
	defer unlock()

	var (
		result  *core.Materialization
		fresh   *core.Schedule
		changed bool
	)
	err := e.store.Transaction(ctx, func(tx core.Storage) error {
		current, err := e.load(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		fresh = current

		if current.Enabled {
			count, err := tx.CountExecutions(ctx, current.ID)
			if err != nil {
				return core.StoreFailure("count executions", err)
			}
			if count > 0 {
				return nil
			}
		} else {
			if _, err := tx.DeleteExecutions(ctx, current.ID); err != nil {
				return core.StoreFailure("delete executions", err)
			}
			current.Enabled = true
			changed = true
		}

		result, err = e.materialize(ctx, tx, current, e.horizon)
		return err
	})
	if err != nil {
		e.materializeFailed(s, result, err)
		return nil, classify("enable", err)
	}

	*s = *fresh
	if changed {
		e.logger.Info("schedule enabled", "schedule_id", s.ID)
		e.Emit(&core.ScheduleEnabled{Schedule: snapshot(s), Timestamp: e.Now()})
	}
	if result != nil {
		e.materialized(s, result)
	}
	return result, nil
}

// Disable switches s off, purges all of its executions and sets its next
// calculation date to now. Disabling a disabled schedule is a no-op apart
// from the purge.
func (e *Engine) Disable(ctx context.Context, s *core.Schedule) error {
	unlock := e.locks.lock(s.ID)
	defer unlock()

	var (
		fresh  *core.Schedule
		purged int64
	)
	err := e.store.Transaction(ctx, func(tx core.Storage) error {
		current, err := e.load(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		purged, err = tx.DeleteExecutions(ctx, current.ID)
		if err != nil {
			return core.StoreFailure("delete executions", err)
		}
		now := e.Now()
		current.Enabled = false
		current.NextCalculationDate = &now
		if err := tx.SaveSchedule(ctx, current); err != nil {
			return core.StoreFailure("save schedule", err)
		}
		fresh = current
		return nil
	})
	if err != nil {
		return classify("disable", err)
	}

	*s = *fresh
	e.logger.Info("schedule disabled", "schedule_id", s.ID, "purged", purged)
	e.Emit(&core.ScheduleDisabled{Schedule: snapshot(s), Purged: purged, Timestamp: e.Now()})
	return nil
}

// Delete purges the executions of s and removes the schedule for good.
func (e *Engine) Delete(ctx context.Context, s *core.Schedule) error {
	unlock := e.locks.lock(s.ID)
	defer unlock()

	var purged int64
	err := e.store.Transaction(ctx, func(tx core.Storage) error {
		var err error
		purged, err = tx.DeleteExecutions(ctx, s.ID)
		if err != nil {
			return core.StoreFailure("delete executions", err)
		}
		if err := tx.DeleteSchedule(ctx, s.ID); err != nil {
			if errors.Is(err, core.ErrScheduleNotFound) {
				return err
			}
			return core.StoreFailure("delete schedule", err)
		}
		return nil
	})
	if err != nil {
		return classify("delete", err)
	}

	e.logger.Info("schedule deleted", "schedule_id", s.ID, "purged", purged)
	e.Emit(&core.ScheduleDeleted{ScheduleID: s.ID, Purged: purged, Timestamp: e.Now()})
	return nil
}

// Postpone moves the next calculation date of an enabled schedule to until
// without materializing anything. It is used for schedules whose rule has no
// occurrence inside the current horizon but may have one later.
func (e *Engine) Postpone(ctx context.Context, s *core.Schedule, until time.Time) error {
	unlock := e.locks.lock(s.ID)
	defer unlock()

	var fresh *core.Schedule
	err := e.store.Transaction(ctx, func(tx core.Storage) error {
		current, err := e.load(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		if !current.Enabled {
			return fmt.Errorf("%w: schedule %s is disabled", core.ErrInvalidState, s.ID)
		}
		next := until.UTC()
		current.NextCalculationDate = &next
		if err := tx.SaveSchedule(ctx, current); err != nil {
			return core.StoreFailure("save schedule", err)
		}
		fresh = current
		return nil
	})
	if err != nil {
		return classify("postpone", err)
	}

	*s = *fresh
	e.logger.Debug("schedule postponed", "schedule_id", s.ID, "until", until.UTC())
	e.Emit(&core.SchedulePostponed{Schedule: snapshot(s), Until: until.UTC(), Timestamp: e.Now()})
	return nil
}

// materialize runs one pass for current, which must be loaded through tx.
// The returned Materialization is populated with the window even when the
// pass fails with core.ErrEmptyRecurrence.
func (e *Engine) materialize(ctx context.Context, tx core.Storage, current *core.Schedule, h core.Horizon) (*core.Materialization, error) {
	from, until, err := e.bounds(ctx, tx, current, h)
	if err != nil {
		return nil, err
	}
	m := &core.Materialization{
		ScheduleID: current.ID,
		From:       from.UTC(),
		Until:      until.UTC(),
	}

	if from.Before(until) {
		occurrences, err := e.occurrences(current, from, until, core.Unbounded)
		if err != nil {
			return m, core.EvaluatorFailure(current.TimeExpression, err)
		}
		m.Executions, err = checkWindow(current.TimeExpression, occurrences, from, until)
		if err != nil {
			return m, err
		}
	}
	if len(m.Executions) == 0 {
		return m, fmt.Errorf("%w: schedule %s has no occurrence in (%s, %s]",
			core.ErrEmptyRecurrence, current.ID, m.From.Format(time.RFC3339), m.Until.Format(time.RFC3339))
	}

	if err := tx.InsertExecutions(ctx, current.ID, m.Executions); err != nil {
		return m, core.StoreFailure("insert executions", err)
	}

	m.NextCalculationDate = m.Executions[len(m.Executions)-1].Add(-e.recalcLead)
	next := m.NextCalculationDate
	current.NextCalculationDate = &next
	if err := tx.SaveSchedule(ctx, current); err != nil {
		return m, core.StoreFailure("save schedule", err)
	}
	return m, nil
}

// occurrences expands the rule of s inside (from, until]. Anchored
// evaluators start the recurrence at the validity start so that every pass
// continues the same sequence.
func (e *Engine) occurrences(s *core.Schedule, from, until time.Time, count int) ([]time.Time, error) {
	if a, ok := e.evaluator.(core.AnchoredRuleEvaluator); ok {
		return a.OccurrencesFrom(s.TimeExpression, s.DateStart.In(from.Location()), from, until, count)
	}
	return e.evaluator.OccurrencesBetween(s.TimeExpression, from, until, count)
}

// bounds returns the exclusive start and inclusive end of the next
// materialization window, both in the schedule's location.
//
// The end is the earlier of the horizon and the validity end. The start is
// the latest stored execution when there is one; otherwise it is the
// validity start, floored at now.
func (e *Engine) bounds(ctx context.Context, store core.ExecutionStore, s *core.Schedule, h core.Horizon) (time.Time, time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	now := e.Now()

	until := h.Resolve(now)
	if s.DateEnd != nil && s.DateEnd.Before(until) {
		until = *s.DateEnd
	}

	from := s.DateStart
	if from.Before(now) {
		from = now
	}
	latest, err := store.LatestExecution(ctx, s.ID)
	if err != nil {
		return time.Time{}, time.Time{}, core.StoreFailure("latest execution", err)
	}
	if latest != nil {
		from = *latest
	}

	return from.In(loc), until.In(loc), nil
}

// checkWindow converts occurrences to UTC, drops repeated instants and
// rejects anything outside (from, until].
func checkWindow(expr string, occurrences []time.Time, from, until time.Time) ([]time.Time, error) {
	out := make([]time.Time, 0, len(occurrences))
	for _, t := range occurrences {
		if !t.After(from) || t.After(until) {
			return nil, core.EvaluatorFailure(expr,
				fmt.Errorf("occurrence %s outside (%s, %s]", t.Format(time.RFC3339), from.Format(time.RFC3339), until.Format(time.RFC3339)))
		}
		if n := len(out); n > 0 {
			if t.Before(out[n-1]) {
				return nil, core.EvaluatorFailure(expr, fmt.Errorf("occurrence %s out of order", t.Format(time.RFC3339)))
			}
			if t.Equal(out[n-1]) {
				continue
			}
		}
		out = append(out, t.UTC())
	}
	return out, nil
}

func (e *Engine) load(ctx context.Context, tx core.Storage, id string) (*core.Schedule, error) {
	current, err := tx.GetSchedule(ctx, id)
	if err != nil {
		return nil, core.StoreFailure("get schedule", err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrScheduleNotFound, id)
	}
	return current, nil
}

func (e *Engine) materialized(s *core.Schedule, m *core.Materialization) {
	e.logger.Info("materialized executions",
		"schedule_id", s.ID,
		"executions", len(m.Executions),
		"until", m.Until,
		"next_calculation_date", m.NextCalculationDate,
	)
	e.Emit(&core.ExecutionsMaterialized{
		Schedule:            snapshot(s),
		Executions:          m.Executions,
		NextCalculationDate: m.NextCalculationDate,
		Timestamp:           e.Now(),
	})
}

func (e *Engine) materializeFailed(s *core.Schedule, m *core.Materialization, err error) {
	if errors.Is(err, core.ErrEmptyRecurrence) && m != nil {
		e.logger.Info("recurrence exhausted", "schedule_id", s.ID, "from", m.From, "until", m.Until)
		e.Emit(&core.RecurrenceExhausted{
			Schedule:  snapshot(s),
			From:      m.From,
			Until:     m.Until,
			Timestamp: e.Now(),
		})
		return
	}
	if errors.Is(err, core.ErrInvalidState) {
		return
	}
	e.logger.Warn("materialization failed",
		"schedule_id", s.ID,
		"error", security.SanitizeErrorMessage(err.Error()),
	)
}

// classify wraps errors that escaped the transaction without a category,
// such as a failed commit, as store failures.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrEmptyRecurrence),
		errors.Is(err, core.ErrScheduleNotFound),
		errors.Is(err, core.ErrInvalidTimezone),
		core.IsEvaluatorFailure(err):
		return err
	default:
		return core.StoreFailure(op, err)
	}
}

func snapshot(s *core.Schedule) *core.Schedule {
	c := *s
	return &c
}
