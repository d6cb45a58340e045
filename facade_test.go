package schedules_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	schedules "github.com/jdziat/device-schedules"
	"github.com/jdziat/device-schedules/pkg/storage"
)

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// setupTestStorage creates an in-memory SQLite storage for use in tests.
func setupTestStorage(t *testing.T) schedules.Storage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, storage.ConfigurePool(db))

	store := schedules.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newUser(t *testing.T, store schedules.Storage, tz string) *schedules.User {
	t.Helper()
	u := &schedules.User{Timezone: tz}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

// ---------------------------------------------------------------------------
// Lifecycle through the facade
// ---------------------------------------------------------------------------

func TestFacade_ScheduleLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	eng := schedules.NewEngine(store,
		schedules.WithClock(schedules.FixedClock(monday)),
		schedules.WithHorizon(schedules.Until(monday.Add(5*schedules.Day))),
	)
	user := newUser(t, store, "UTC")

	s := &schedules.Schedule{UserID: user.ID, TimeExpression: schedules.Daily(9, 0), DateStart: monday}
	require.NoError(t, eng.Create(ctx, s))

	m, err := eng.Enable(ctx, s)
	require.NoError(t, err)
	assert.Len(t, m.Executions, 5)
	assert.True(t, s.NextCalculationDate.Equal(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)))

	w, err := eng.FindClosestExecutions(ctx, s, schedules.DefaultContextSize)
	require.NoError(t, err)
	assert.Empty(t, w.Past)
	assert.Len(t, w.Future, 4)

	require.NoError(t, eng.Disable(ctx, s))
	w, err = eng.FindClosestExecutions(ctx, s, schedules.DefaultContextSize)
	require.NoError(t, err)
	assert.Empty(t, w.Past)
	assert.Empty(t, w.Future)

	_, err = eng.Materialize(ctx, s)
	assert.ErrorIs(t, err, schedules.ErrInvalidState)

	require.NoError(t, eng.Delete(ctx, s))
	assert.ErrorIs(t, eng.Delete(ctx, s), schedules.ErrScheduleNotFound)
}

func TestFacade_EnableAfterValidityEnd(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	eng := schedules.NewEngine(store, schedules.WithClock(schedules.FixedClock(monday.AddDate(0, 2, 0))))
	user := newUser(t, store, "Europe/Warsaw")

	end := monday.AddDate(0, 1, 0)
	s := &schedules.Schedule{UserID: user.ID, TimeExpression: schedules.Weekly(time.Friday, 18, 0), DateStart: monday, DateEnd: &end}
	require.NoError(t, eng.Create(ctx, s))

	_, err := eng.Enable(ctx, s)
	assert.True(t, errors.Is(err, schedules.ErrEmptyRecurrence))

	n, err := store.CountExecutions(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFacade_CreateRejectsInvalidSchedules(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	eng := schedules.NewEngine(store)
	user := newUser(t, store, "UTC")

	err := eng.Create(ctx, &schedules.Schedule{UserID: user.ID, TimeExpression: "FREQ=SOMETIMES", DateStart: monday})
	assert.ErrorIs(t, err, schedules.ErrInvalidRule)
	assert.True(t, schedules.IsEvaluatorFailure(err))

	before := monday.Add(-time.Hour)
	err = eng.Create(ctx, &schedules.Schedule{UserID: user.ID, TimeExpression: schedules.Every(time.Hour), DateStart: monday, DateEnd: &before})
	assert.ErrorIs(t, err, schedules.ErrInvalidValidity)
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestFacade_WorkerSweep(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	clock := schedules.FixedClock(monday)
	eng := schedules.NewEngine(store, schedules.WithClock(clock))
	user := newUser(t, store, "UTC")

	s := &schedules.Schedule{UserID: user.ID, TimeExpression: schedules.Every(6 * time.Hour), DateStart: monday}
	require.NoError(t, eng.Create(ctx, s))
	_, err := eng.Enable(ctx, s)
	require.NoError(t, err)

	// Pretend the next calculation is already due.
	require.NoError(t, eng.Postpone(ctx, s, monday))

	w := schedules.NewWorker(eng, schedules.Concurrency(2), schedules.BatchSize(10))
	report, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	// The window was already full, so the sweep found nothing new.
	assert.Equal(t, 1, report.Exhausted)
	assert.Equal(t, 1, report.Postponed)
}

// ---------------------------------------------------------------------------
// Helpers and re-exports
// ---------------------------------------------------------------------------

func TestFacade_SchedulableChannels(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	user := newUser(t, store, "UTC")
	for _, ch := range []*schedules.Channel{
		{UserID: user.ID, Function: 140, Caption: "Żyrandol"},
		{UserID: user.ID, Function: 140, Caption: "Biurko"},
		{UserID: user.ID, Function: 20, Caption: "Brama"},
		{UserID: user.ID, Function: 1, Caption: "Czujnik"},
	} {
		require.NoError(t, store.CreateChannel(ctx, ch))
	}

	got, err := schedules.SchedulableChannels(ctx, store, user.ID, schedules.FunctionNames{20: "Gate", 140: "Light switch"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Brama", got[0].Caption)
	assert.Equal(t, "Biurko", got[1].Caption)
	assert.Equal(t, "Żyrandol", got[2].Caption)

	assert.Equal(t, "zyrandol", schedules.Slugify("Żyrandol"))
}

func TestFacade_ParseHorizon(t *testing.T) {
	h, err := schedules.ParseHorizon("+5 days")
	require.NoError(t, err)
	assert.Equal(t, schedules.DefaultHorizon, h)

	_, err = schedules.ParseHorizon("later")
	assert.ErrorIs(t, err, schedules.ErrInvalidHorizon)
}

func TestFacade_Validation(t *testing.T) {
	assert.NoError(t, schedules.ValidateRule(schedules.Daily(7, 30)))
	assert.ErrorIs(t, schedules.ValidateTimezone("Atlantis/Capital"), schedules.ErrInvalidTimezone)
	assert.Equal(t, schedules.MaxConcurrency, schedules.ClampConcurrency(1<<20))
	assert.Equal(t, "ab", schedules.SanitizeErrorMessage("a\x00b"))
}

func TestFacade_RuleEvaluator(t *testing.T) {
	ev := schedules.NewRuleEvaluator(schedules.DefaultMaxOccurrences)
	got, err := ev.OccurrencesBetween(schedules.Every(time.Hour), monday, monday.Add(3*time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, ok := ev.(schedules.AnchoredRuleEvaluator)
	assert.True(t, ok, "default evaluator continues rules from the schedule start")
}

func TestFacade_WriteCalendar(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	eng := schedules.NewEngine(store,
		schedules.WithClock(schedules.FixedClock(monday)),
		schedules.WithHorizon(schedules.Until(monday.Add(5*schedules.Day))),
	)
	user := newUser(t, store, "UTC")

	s := &schedules.Schedule{UserID: user.ID, Caption: "Porch", TimeExpression: schedules.Daily(9, 0), DateStart: monday}
	require.NoError(t, eng.Create(ctx, s))
	_, err := eng.Enable(ctx, s)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, schedules.WriteCalendar(ctx, &buf, eng, s, 3))
	assert.Equal(t, 3, strings.Count(buf.String(), "BEGIN:VEVENT"))
	assert.Contains(t, buf.String(), "DTSTART:20240101T090000Z")
}
