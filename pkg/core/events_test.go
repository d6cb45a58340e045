package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecutionsMaterialized_ImplementsEvent(t *testing.T) {
	var e Event = &ExecutionsMaterialized{
		Schedule:   &Schedule{ID: "test"},
		Executions: []time.Time{time.Now()},
		Timestamp:  time.Now(),
	}
	assert.NotNil(t, e)
}

func TestRecurrenceExhausted_ImplementsEvent(t *testing.T) {
	var e Event = &RecurrenceExhausted{Schedule: &Schedule{ID: "test"}, Timestamp: time.Now()}
	assert.NotNil(t, e)
}

func TestLifecycleEvents_ImplementEvent(t *testing.T) {
	events := []Event{
		&ScheduleEnabled{Schedule: &Schedule{ID: "test"}},
		&ScheduleDisabled{Schedule: &Schedule{ID: "test"}, Purged: 3},
		&ScheduleDeleted{ScheduleID: "test", Purged: 3},
		&SchedulePostponed{Schedule: &Schedule{ID: "test"}, Until: time.Now()},
	}
	for _, e := range events {
		assert.NotNil(t, e)
	}
}
