package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/device-schedules/pkg/core"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestSchedule stores a user and an enabled schedule owned by it.
func newTestSchedule(t *testing.T, s *GormStorage) *core.Schedule {
	t.Helper()
	ctx := context.Background()

	user := &core.User{Timezone: "Europe/Warsaw"}
	require.NoError(t, s.CreateUser(ctx, user))

	schedule := &core.Schedule{
		UserID:         user.ID,
		TimeExpression: "0 9 * * *",
		DateStart:      base,
		Enabled:        true,
	}
	require.NoError(t, s.CreateSchedule(ctx, schedule))
	return schedule
}

func hoursAfterBase(hours ...int) []time.Time {
	out := make([]time.Time, len(hours))
	for i, h := range hours {
		out[i] = base.Add(time.Duration(h) * time.Hour)
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Constructor / detection
// ──────────────────────────────────────────────────────────────────────────────

func TestNewGormStorage_IsSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := NewGormStorage(db)
	assert.True(t, s.IsSQLite(), "should detect SQLite dialect")
	assert.Same(t, db, s.DB())
}

func TestNewGormStorage_NilDB(t *testing.T) {
	s := NewGormStorage(nil)
	assert.False(t, s.IsSQLite(), "nil db should not claim SQLite")
}

// ──────────────────────────────────────────────────────────────────────────────
// Users, channels, schedules
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateUser_DefaultsTimezone(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	user := &core.User{}
	require.NoError(t, s.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "UTC", got.Timezone)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.GetUser(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetChannelsByUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	owner := &core.User{}
	other := &core.User{}
	require.NoError(t, s.CreateUser(ctx, owner))
	require.NoError(t, s.CreateUser(ctx, other))

	require.NoError(t, s.CreateChannel(ctx, &core.Channel{UserID: owner.ID, Function: 20, Caption: "Gate"}))
	require.NoError(t, s.CreateChannel(ctx, &core.Channel{UserID: owner.ID, Function: 140, Caption: "Lamp"}))
	require.NoError(t, s.CreateChannel(ctx, &core.Channel{UserID: other.ID, Function: 20}))

	channels, err := s.GetChannelsByUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, channels, 2)
	for _, ch := range channels {
		assert.Equal(t, owner.ID, ch.UserID)
	}
}

func TestGetSchedule_PreloadsOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)

	got, err := s.GetSchedule(ctx, schedule.ID)

	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.User)
	assert.Equal(t, "Europe/Warsaw", got.User.Timezone)
	assert.Equal(t, "0 9 * * *", got.TimeExpression)
	assert.True(t, got.DateStart.Equal(base))
	assert.Nil(t, got.DateEnd)
	assert.Nil(t, got.NextCalculationDate)
}

func TestGetSchedule_NotFound(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.GetSchedule(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateSchedule_NormalizesToUTC(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	user := &core.User{}
	require.NoError(t, s.CreateUser(ctx, user))
	end := time.Date(2024, 2, 1, 12, 0, 0, 0, warsaw)
	schedule := &core.Schedule{
		UserID:         user.ID,
		TimeExpression: "0 9 * * *",
		DateStart:      time.Date(2024, 1, 1, 1, 0, 0, 0, warsaw),
		DateEnd:        &end,
	}
	require.NoError(t, s.CreateSchedule(ctx, schedule))

	assert.Equal(t, time.UTC, schedule.DateStart.Location())
	assert.True(t, schedule.DateStart.Equal(base))
	assert.Equal(t, time.UTC, schedule.DateEnd.Location())
}

func TestSaveSchedule_DoesNotTouchOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)

	loaded, err := s.GetSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	loaded.User.Timezone = "Asia/Tokyo"
	next := base.Add(48 * time.Hour)
	loaded.NextCalculationDate = &next
	loaded.Enabled = false
	require.NoError(t, s.SaveSchedule(ctx, loaded))

	got, err := s.GetSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	require.NotNil(t, got.NextCalculationDate)
	assert.True(t, got.NextCalculationDate.Equal(next))
	assert.Equal(t, "Europe/Warsaw", got.User.Timezone)
}

func TestDeleteSchedule(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)

	require.NoError(t, s.DeleteSchedule(ctx, schedule.ID))

	got, err := s.GetSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = s.DeleteSchedule(ctx, schedule.ID)
	assert.ErrorIs(t, err, core.ErrScheduleNotFound)
}

func TestGetDueSchedules(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	now := base.Add(72 * time.Hour)

	due := newTestSchedule(t, s)
	dueAt := now.Add(-time.Hour)
	due.NextCalculationDate = &dueAt
	require.NoError(t, s.SaveSchedule(ctx, due))

	older := newTestSchedule(t, s)
	olderAt := now.Add(-48 * time.Hour)
	older.NextCalculationDate = &olderAt
	require.NoError(t, s.SaveSchedule(ctx, older))

	later := newTestSchedule(t, s)
	laterAt := now.Add(time.Hour)
	later.NextCalculationDate = &laterAt
	require.NoError(t, s.SaveSchedule(ctx, later))

	disabled := newTestSchedule(t, s)
	disabled.Enabled = false
	disabled.NextCalculationDate = &olderAt
	require.NoError(t, s.SaveSchedule(ctx, disabled))

	newTestSchedule(t, s) // never calculated

	schedules, err := s.GetDueSchedules(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, older.ID, schedules[0].ID)
	assert.Equal(t, due.ID, schedules[1].ID)
	assert.NotNil(t, schedules[0].User)

	limited, err := s.GetDueSchedules(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// ──────────────────────────────────────────────────────────────────────────────
// Executions
// ──────────────────────────────────────────────────────────────────────────────

func TestLatestExecution(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)

	latest, err := s.LatestExecution(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, s.InsertExecutions(ctx, schedule.ID, hoursAfterBase(9, 33, 57)))

	latest, err = s.LatestExecution(ctx, schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(base.Add(57*time.Hour)))
}

func TestInsertExecutions_RejectsDuplicateInstant(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)

	require.NoError(t, s.InsertExecutions(ctx, schedule.ID, hoursAfterBase(9)))

	err := s.InsertExecutions(ctx, schedule.ID, hoursAfterBase(33, 9))
	require.Error(t, err)

	// The batch is atomic: the non-conflicting row was not kept either.
	count, err := s.CountExecutions(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInsertExecutions_Empty(t *testing.T) {
	s := newTestStorage(t)

	assert.NoError(t, s.InsertExecutions(context.Background(), "any", nil))
}

func TestNearestExecutions(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)
	require.NoError(t, s.InsertExecutions(ctx, schedule.ID, hoursAfterBase(1, 2, 3, 4, 5, 6)))

	ref := base.Add(4 * time.Hour)

	before, err := s.NearestExecutions(ctx, schedule.ID, ref, core.Before, 2)
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.True(t, before[0].Timestamp.Equal(base.Add(3*time.Hour)), "newest first")
	assert.True(t, before[1].Timestamp.Equal(base.Add(2*time.Hour)))

	after, err := s.NearestExecutions(ctx, schedule.ID, ref, core.AtOrAfter, 5)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.True(t, after[0].Timestamp.Equal(ref), "reference instant is included")
	assert.True(t, after[2].Timestamp.Equal(base.Add(6*time.Hour)))

	none, err := s.NearestExecutions(ctx, schedule.ID, ref, core.Before, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.NearestExecutions(ctx, schedule.ID, ref, core.Direction(42), 1)
	assert.Error(t, err)
}

func TestDeleteExecutions(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)
	other := newTestSchedule(t, s)
	require.NoError(t, s.InsertExecutions(ctx, schedule.ID, hoursAfterBase(1, 2, 3)))
	require.NoError(t, s.InsertExecutions(ctx, other.ID, hoursAfterBase(1)))

	deleted, err := s.DeleteExecutions(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	count, err := s.CountExecutions(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = s.CountExecutions(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────────────────────────────────

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)

	err := s.Transaction(ctx, func(tx core.Storage) error {
		if err := tx.InsertExecutions(ctx, schedule.ID, hoursAfterBase(1, 2)); err != nil {
			return err
		}
		schedule.Enabled = false
		return tx.SaveSchedule(ctx, schedule)
	})
	require.NoError(t, err)

	count, err := s.CountExecutions(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	schedule := newTestSchedule(t, s)
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx core.Storage) error {
		if err := tx.InsertExecutions(ctx, schedule.ID, hoursAfterBase(1, 2)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := s.CountExecutions(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// ──────────────────────────────────────────────────────────────────────────────
// Open
// ──────────────────────────────────────────────────────────────────────────────

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "schedules.db")

	s, err := Open(ctx, Config{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	assert.True(t, s.IsSQLite())

	user := &core.User{}
	assert.NoError(t, s.CreateUser(ctx, user))
}

func TestDialector_Errors(t *testing.T) {
	_, err := Dialector(Config{Driver: "sqlite"})
	assert.Error(t, err)

	_, err = Dialector(Config{Driver: "postgres"})
	assert.Error(t, err)

	_, err = Dialector(Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)

	d, err := Dialector(Config{Driver: "postgres", DSN: "postgres://localhost/schedules"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestLogMode(t *testing.T) {
	assert.Equal(t, logger.Info, LogMode("info"))
	assert.Equal(t, logger.Warn, LogMode("WARN"))
	assert.Equal(t, logger.Error, LogMode("error"))
	assert.Equal(t, logger.Silent, LogMode(""))
	assert.Equal(t, logger.Silent, LogMode("verbose"))
}
