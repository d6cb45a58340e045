package core

import "time"

// Event is the interface for all engine events.
type Event interface {
	eventMarker()
}

// ExecutionsMaterialized is emitted after a materialization pass persisted
// new executions.
type ExecutionsMaterialized struct {
	Schedule            *Schedule
	Executions          []time.Time
	NextCalculationDate time.Time
	Timestamp           time.Time
}

func (*ExecutionsMaterialized) eventMarker() {}

// RecurrenceExhausted is emitted when a pass found no executions to
// materialize.
type RecurrenceExhausted struct {
	Schedule  *Schedule
	From      time.Time
	Until     time.Time
	Timestamp time.Time
}

func (*RecurrenceExhausted) eventMarker() {}

// ScheduleEnabled is emitted when a schedule transitions to enabled.
type ScheduleEnabled struct {
	Schedule  *Schedule
	Timestamp time.Time
}

func (*ScheduleEnabled) eventMarker() {}

// ScheduleDisabled is emitted when a schedule is disabled and its executions
// purged.
type ScheduleDisabled struct {
	Schedule  *Schedule
	Purged    int64
	Timestamp time.Time
}

func (*ScheduleDisabled) eventMarker() {}

// ScheduleDeleted is emitted when a schedule has been removed permanently.
type ScheduleDeleted struct {
	ScheduleID string
	Purged     int64
	Timestamp  time.Time
}

func (*ScheduleDeleted) eventMarker() {}

// SchedulePostponed is emitted when the next calculation date is pushed
// forward without materializing.
type SchedulePostponed struct {
	Schedule  *Schedule
	Until     time.Time
	Timestamp time.Time
}

func (*SchedulePostponed) eventMarker() {}
