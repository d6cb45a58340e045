package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/device-schedules/pkg/core"
	"github.com/jdziat/device-schedules/pkg/storage"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestStorage(t *testing.T) *storage.GormStorage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store, err := storage.NewGormStorageWithPool(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// newTestEngine returns an engine whose clock starts at now.
func newTestEngine(t *testing.T, now time.Time, opts ...Option) (*Engine, core.Storage, *testClock) {
	t.Helper()
	store := newTestStorage(t)
	clock := &testClock{now: now}
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(store, opts...), store, clock
}

// newTestSchedule stores an owner in tz and a schedule for expr.
func newTestSchedule(t *testing.T, store core.Storage, tz, expr string, start time.Time, end *time.Time, enabled bool) *core.Schedule {
	t.Helper()
	ctx := context.Background()

	user := &core.User{Timezone: tz}
	require.NoError(t, store.CreateUser(ctx, user))

	s := &core.Schedule{
		UserID:         user.ID,
		User:           user,
		TimeExpression: expr,
		DateStart:      start,
		DateEnd:        end,
		Enabled:        enabled,
	}
	require.NoError(t, store.CreateSchedule(ctx, s))
	return s
}

func countExecutions(t *testing.T, store core.Storage, id string) int64 {
	t.Helper()
	n, err := store.CountExecutions(context.Background(), id)
	require.NoError(t, err)
	return n
}

func allExecutions(t *testing.T, store core.Storage, id string) []time.Time {
	t.Helper()
	rows, err := store.NearestExecutions(context.Background(), id, time.Time{}, core.AtOrAfter, 10000)
	require.NoError(t, err)
	out := make([]time.Time, len(rows))
	for i, r := range rows {
		out[i] = r.Timestamp.UTC()
	}
	return out
}

func utcAll(ts []time.Time) []time.Time {
	out := make([]time.Time, len(ts))
	for i, t := range ts {
		out[i] = t.UTC()
	}
	return out
}

func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

// faultyStore fails the configured operation, inside transactions too.
type faultyStore struct {
	core.Storage
	failInsert error
	failLatest error
}

func (f *faultyStore) LatestExecution(ctx context.Context, id string) (*time.Time, error) {
	if f.failLatest != nil {
		return nil, f.failLatest
	}
	return f.Storage.LatestExecution(ctx, id)
}

func (f *faultyStore) InsertExecutions(ctx context.Context, id string, instants []time.Time) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	return f.Storage.InsertExecutions(ctx, id, instants)
}

func (f *faultyStore) Transaction(ctx context.Context, fn func(tx core.Storage) error) error {
	return f.Storage.Transaction(ctx, func(tx core.Storage) error {
		return fn(&faultyStore{Storage: tx, failInsert: f.failInsert, failLatest: f.failLatest})
	})
}
