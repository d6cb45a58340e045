// Package schedules keeps a rolling window of materialized executions for
// recurring device schedules.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Open storage and create the engine
//	store, _ := schedules.Open(ctx, schedules.StorageConfig{Driver: "sqlite", DSN: "schedules.db"})
//	eng := schedules.NewEngine(store)
//
//	// Create and enable a schedule firing every day at 07:30 owner time
//	s := &schedules.Schedule{UserID: user.ID, TimeExpression: schedules.Daily(7, 30), DateStart: time.Now()}
//	eng.Create(ctx, s)
//	eng.Enable(ctx, s)
//
//	// Keep every enabled schedule materialized
//	worker := schedules.NewWorker(eng)
//	worker.Start(ctx)
package schedules

import (
	"context"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/device-schedules/pkg/calendar"
	"github.com/jdziat/device-schedules/pkg/channels"
	"github.com/jdziat/device-schedules/pkg/core"
	"github.com/jdziat/device-schedules/pkg/engine"
	"github.com/jdziat/device-schedules/pkg/rule"
	"github.com/jdziat/device-schedules/pkg/security"
	"github.com/jdziat/device-schedules/pkg/storage"
	"github.com/jdziat/device-schedules/pkg/worker"
)

// Type aliases
type (
	// User owns schedules and channels and carries their time zone.
	User = core.User

	// Channel is a device channel a schedule can target.
	Channel = core.Channel

	// Schedule is a recurring plan for a device channel.
	Schedule = core.Schedule

	// ScheduledExecution is one materialized firing of a schedule.
	ScheduledExecution = core.ScheduledExecution

	// ExecutionWindow holds the executions closest to now.
	ExecutionWindow = core.ExecutionWindow

	// Materialization describes the outcome of one materialization pass.
	Materialization = core.Materialization

	// Horizon is the forward bound of a materialization pass.
	Horizon = core.Horizon

	// Clock supplies the current instant.
	Clock = core.Clock

	// Storage defines the persistence layer for schedules.
	Storage = core.Storage

	// RuleEvaluator expands recurrence rules into instants.
	RuleEvaluator = core.RuleEvaluator

	// AnchoredRuleEvaluator continues a rule from the schedule's start.
	AnchoredRuleEvaluator = core.AnchoredRuleEvaluator

	// Event is the interface for all engine events.
	Event = core.Event

	// ExecutionsMaterialized is emitted after executions were stored.
	ExecutionsMaterialized = core.ExecutionsMaterialized

	// RecurrenceExhausted is emitted when a pass found nothing to store.
	RecurrenceExhausted = core.RecurrenceExhausted

	// ScheduleEnabled is emitted when a schedule is switched on.
	ScheduleEnabled = core.ScheduleEnabled

	// ScheduleDisabled is emitted when a schedule is switched off.
	ScheduleDisabled = core.ScheduleDisabled

	// ScheduleDeleted is emitted when a schedule is removed.
	ScheduleDeleted = core.ScheduleDeleted

	// SchedulePostponed is emitted when a schedule's next pass is pushed back.
	SchedulePostponed = core.SchedulePostponed

	// StoreError wraps a storage failure.
	StoreError = core.StoreError

	// EvaluatorError wraps a rule evaluation failure.
	EvaluatorError = core.EvaluatorError

	// Engine materializes executions and drives the schedule lifecycle.
	Engine = engine.Engine

	// EngineOption configures an Engine.
	EngineOption = engine.Option

	// Worker periodically materializes due schedules.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// WorkerConfig holds worker configuration.
	WorkerConfig = worker.WorkerConfig

	// SweepReport summarizes one sweep.
	SweepReport = worker.SweepReport

	// RetryConfig holds configuration for retry with backoff.
	RetryConfig = worker.RetryConfig

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// StorageConfig selects and tunes the database.
	StorageConfig = storage.Config

	// FunctionNames maps schedulable channel functions to display names.
	FunctionNames = channels.FunctionNames

	// CalendarFeed renders executions as iCalendar events.
	CalendarFeed = calendar.Feed
)

// Direction constants
const (
	Before    = core.Before
	AtOrAfter = core.AtOrAfter
)

// Engine defaults
const (
	Day                      = core.Day
	DefaultContextSize       = engine.DefaultContextSize
	DefaultRecalculationLead = engine.DefaultRecalculationLead
	DefaultMaxOccurrences    = rule.DefaultMaxOccurrences
)

// Security limits
const (
	MaxRuleLength         = security.MaxRuleLength
	MaxConcurrency        = security.MaxConcurrency
	MaxContextSize        = security.MaxContextSize
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrInvalidState     = core.ErrInvalidState
	ErrEmptyRecurrence  = core.ErrEmptyRecurrence
	ErrScheduleNotFound = core.ErrScheduleNotFound
	ErrInvalidTimezone  = core.ErrInvalidTimezone
	ErrInvalidRule      = core.ErrInvalidRule
	ErrRuleTooLong      = core.ErrRuleTooLong
	ErrInvalidValidity  = core.ErrInvalidValidity
	ErrInvalidHorizon   = core.ErrInvalidHorizon
)

// DefaultHorizon materializes five days ahead.
var DefaultHorizon = core.DefaultHorizon

// NewEngine creates an Engine backed by s.
func NewEngine(s Storage, opts ...EngineOption) *Engine {
	return engine.New(s, opts...)
}

// NewWorker creates a Worker driving eng.
func NewWorker(eng *Engine, opts ...WorkerOption) *Worker {
	return worker.NewWorker(eng, opts...)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// Open connects to the configured database and migrates it.
func Open(ctx context.Context, cfg StorageConfig) (*GormStorage, error) {
	return storage.Open(ctx, cfg)
}

// NewRuleEvaluator returns the cron/RRULE evaluator used by default.
func NewRuleEvaluator(maxOccurrences int) RuleEvaluator {
	return rule.NewEvaluator(maxOccurrences)
}

// IsStoreFailure reports whether err came from storage.
func IsStoreFailure(err error) bool {
	return core.IsStoreFailure(err)
}

// IsEvaluatorFailure reports whether err came from rule evaluation.
func IsEvaluatorFailure(err error) bool {
	return core.IsEvaluatorFailure(err)
}

// Horizons

// Within returns a horizon d after now.
func Within(d time.Duration) Horizon {
	return core.Within(d)
}

// Until returns a horizon fixed at t.
func Until(t time.Time) Horizon {
	return core.Until(t)
}

// ParseHorizon parses "+5 days", "+36h" or an absolute date.
func ParseHorizon(s string) (Horizon, error) {
	return core.ParseHorizon(s)
}

// Clocks

// SystemClock returns time.Now in UTC.
var SystemClock = core.SystemClock

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return core.FixedClock(t)
}

// Rule builders

// Every returns a rule firing at fixed intervals.
func Every(d time.Duration) string {
	return rule.Every(d)
}

// Daily returns a rule firing at hour:minute owner time each day.
func Daily(hour, minute int) string {
	return rule.Daily(hour, minute)
}

// Weekly returns a rule firing at hour:minute owner time on day each week.
func Weekly(day time.Weekday, hour, minute int) string {
	return rule.Weekly(day, hour, minute)
}

// Validation

// ValidateRule checks a recurrence rule's length and characters.
func ValidateRule(r string) error {
	return security.ValidateRule(r)
}

// ValidateTimezone checks an IANA time zone name.
func ValidateTimezone(name string) error {
	return security.ValidateTimezone(name)
}

// SanitizeErrorMessage strips control characters and truncates msg.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// ClampConcurrency ensures concurrency is within limits.
func ClampConcurrency(n int) int {
	return security.ClampConcurrency(n)
}

// Engine option functions

// WithClock sets the engine's clock.
func WithClock(c Clock) EngineOption {
	return engine.WithClock(c)
}

// WithHorizon sets the engine's default horizon.
func WithHorizon(h Horizon) EngineOption {
	return engine.WithHorizon(h)
}

// WithRecalculationLead sets how early the next pass becomes due.
func WithRecalculationLead(d time.Duration) EngineOption {
	return engine.WithRecalculationLead(d)
}

// WithEvaluator sets the engine's rule evaluator.
func WithEvaluator(ev RuleEvaluator) EngineOption {
	return engine.WithEvaluator(ev)
}

// Worker option functions

// Concurrency sets how many schedules a sweep materializes in parallel.
func Concurrency(n int) WorkerOption {
	return worker.Concurrency(n)
}

// PollInterval sets how often the worker sweeps.
func PollInterval(d time.Duration) WorkerOption {
	return worker.PollInterval(d)
}

// BatchSize sets how many due schedules one sweep picks up.
func BatchSize(n int) WorkerOption {
	return worker.BatchSize(n)
}

// RateLimit caps the schedules started per second.
func RateLimit(perSecond float64) WorkerOption {
	return worker.RateLimit(perSecond)
}

// DisableExhausted controls whether expired schedules are disabled.
func DisableExhausted(enabled bool) WorkerOption {
	return worker.DisableExhausted(enabled)
}

// Channels

// SchedulableChannels returns the user's schedulable channels in presentation order.
func SchedulableChannels(ctx context.Context, s Storage, userID string, names FunctionNames) ([]Channel, error) {
	return channels.Schedulable(ctx, s, userID, names)
}

// Slugify folds s into the slug used for channel ordering.
func Slugify(s string) string {
	return channels.Slugify(s)
}

// WriteCalendar writes up to limit upcoming executions of s as an iCalendar
// feed.
func WriteCalendar(ctx context.Context, w io.Writer, eng *Engine, s *Schedule, limit int) error {
	now := eng.Now()
	executions, err := calendar.Upcoming(ctx, eng.Storage(), s.ID, now, limit)
	if err != nil {
		return err
	}
	return calendar.Feed{}.Write(w, s, executions, now)
}
