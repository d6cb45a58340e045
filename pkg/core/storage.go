package core

import (
	"context"
	"time"
)

// ExecutionStore persists materialized executions.
type ExecutionStore interface {
	// LatestExecution returns the instant of the most recent execution of a
	// schedule, or nil when it has none.
	LatestExecution(ctx context.Context, scheduleID string) (*time.Time, error)

	// NearestExecutions returns up to limit executions on the given side of
	// ref. Before yields newest first; AtOrAfter yields soonest first.
	NearestExecutions(ctx context.Context, scheduleID string, ref time.Time, dir Direction, limit int) ([]ScheduledExecution, error)

	// InsertExecutions atomically inserts one execution per instant.
	InsertExecutions(ctx context.Context, scheduleID string, instants []time.Time) error

	// DeleteExecutions atomically removes every execution of a schedule.
	DeleteExecutions(ctx context.Context, scheduleID string) (int64, error)

	// CountExecutions returns the number of stored executions of a schedule.
	CountExecutions(ctx context.Context, scheduleID string) (int64, error)
}

// ScheduleStore persists users, channels and schedules.
type ScheduleStore interface {
	// Users and channels
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	CreateChannel(ctx context.Context, channel *Channel) error
	GetChannelsByUser(ctx context.Context, userID string) ([]Channel, error)

	// Schedules
	CreateSchedule(ctx context.Context, schedule *Schedule) error
	GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error)
	SaveSchedule(ctx context.Context, schedule *Schedule) error
	DeleteSchedule(ctx context.Context, scheduleID string) error

	// GetDueSchedules returns enabled schedules whose next calculation date
	// is at or before now, oldest first.
	GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)
}

// Storage defines the persistence layer for schedules.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	ExecutionStore
	ScheduleStore

	// Transaction runs fn against a Storage bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Storage) error) error
}
