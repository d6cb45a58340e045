// Package storage provides storage implementations for the schedules package.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/device-schedules/pkg/core"
)

const insertBatchSize = 500

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying GORM handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage talks to SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.User{},
		&core.Channel{},
		&core.Schedule{},
		&core.ScheduledExecution{},
	)
}

// Transaction runs fn inside a database transaction.
func (s *GormStorage) Transaction(ctx context.Context, fn func(tx core.Storage) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStorage{db: tx})
	})
}

// CreateUser stores a new user. A missing time zone defaults to UTC.
func (s *GormStorage) CreateUser(ctx context.Context, user *core.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Timezone == "" {
		user.Timezone = "UTC"
	}
	return s.db.WithContext(ctx).Create(user).Error
}

// GetUser retrieves a user by ID.
func (s *GormStorage) GetUser(ctx context.Context, userID string) (*core.User, error) {
	var user core.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &user, err
}

// CreateChannel stores a new channel.
func (s *GormStorage) CreateChannel(ctx context.Context, channel *core.Channel) error {
	if channel.ID == "" {
		channel.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(channel).Error
}

// GetChannelsByUser retrieves every channel owned by a user.
func (s *GormStorage) GetChannelsByUser(ctx context.Context, userID string) ([]core.Channel, error) {
	var channels []core.Channel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&channels).Error
	return channels, err
}

// CreateSchedule stores a new schedule.
func (s *GormStorage) CreateSchedule(ctx context.Context, schedule *core.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	normalizeSchedule(schedule)
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(schedule).Error
}

// GetSchedule retrieves a schedule by ID with its owner preloaded.
func (s *GormStorage) GetSchedule(ctx context.Context, scheduleID string) (*core.Schedule, error) {
	var schedule core.Schedule
	err := s.db.WithContext(ctx).
		Preload("User").
		First(&schedule, "id = ?", scheduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalizeSchedule(&schedule)
	return &schedule, nil
}

// SaveSchedule writes every field of an existing schedule.
func (s *GormStorage) SaveSchedule(ctx context.Context, schedule *core.Schedule) error {
	normalizeSchedule(schedule)
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(schedule).Error
}

// DeleteSchedule removes a schedule record.
func (s *GormStorage) DeleteSchedule(ctx context.Context, scheduleID string) error {
	result := s.db.WithContext(ctx).Delete(&core.Schedule{}, "id = ?", scheduleID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrScheduleNotFound
	}
	return nil
}

// GetDueSchedules returns enabled schedules whose next calculation is due.
func (s *GormStorage) GetDueSchedules(ctx context.Context, now time.Time, limit int) ([]*core.Schedule, error) {
	var schedules []*core.Schedule
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("enabled = ?", true).
		Where("next_calculation_date IS NOT NULL AND next_calculation_date <= ?", now.UTC()).
		Order("next_calculation_date ASC, id ASC").
		Limit(limit).
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	for _, schedule := range schedules {
		normalizeSchedule(schedule)
	}
	return schedules, nil
}

// LatestExecution returns the instant of a schedule's most recent execution.
func (s *GormStorage) LatestExecution(ctx context.Context, scheduleID string) (*time.Time, error) {
	var executions []core.ScheduledExecution
	err := s.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("run_at DESC").
		Limit(1).
		Find(&executions).Error
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, nil
	}
	latest := executions[0].Timestamp.UTC()
	return &latest, nil
}

// NearestExecutions returns up to limit executions on one side of ref.
func (s *GormStorage) NearestExecutions(ctx context.Context, scheduleID string, ref time.Time, dir core.Direction, limit int) ([]core.ScheduledExecution, error) {
	if limit <= 0 {
		return []core.ScheduledExecution{}, nil
	}

	query := s.db.WithContext(ctx).Where("schedule_id = ?", scheduleID)
	switch dir {
	case core.Before:
		query = query.Where("run_at < ?", ref.UTC()).Order("run_at DESC")
	case core.AtOrAfter:
		query = query.Where("run_at >= ?", ref.UTC()).Order("run_at ASC")
	default:
		return nil, errors.New("schedules: unknown direction")
	}

	executions := make([]core.ScheduledExecution, 0, limit)
	if err := query.Limit(limit).Find(&executions).Error; err != nil {
		return nil, err
	}
	for i := range executions {
		executions[i].Timestamp = executions[i].Timestamp.UTC()
	}
	return executions, nil
}

// InsertExecutions stores one execution per instant in a single transaction.
func (s *GormStorage) InsertExecutions(ctx context.Context, scheduleID string, instants []time.Time) error {
	if len(instants) == 0 {
		return nil
	}
	rows := make([]core.ScheduledExecution, len(instants))
	for i, instant := range instants {
		rows[i] = core.ScheduledExecution{
			ID:         uuid.New().String(),
			ScheduleID: scheduleID,
			Timestamp:  instant.UTC(),
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
}

// DeleteExecutions removes every execution of a schedule.
func (s *GormStorage) DeleteExecutions(ctx context.Context, scheduleID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Delete(&core.ScheduledExecution{})
	return result.RowsAffected, result.Error
}

// CountExecutions returns how many executions a schedule has stored.
func (s *GormStorage) CountExecutions(ctx context.Context, scheduleID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.ScheduledExecution{}).
		Where("schedule_id = ?", scheduleID).
		Count(&count).Error
	return count, err
}

// normalizeSchedule keeps every persisted instant in UTC so that string
// comparisons in SQLite order correctly.
func normalizeSchedule(schedule *core.Schedule) {
	schedule.DateStart = schedule.DateStart.UTC()
	if schedule.DateEnd != nil {
		end := schedule.DateEnd.UTC()
		schedule.DateEnd = &end
	}
	if schedule.NextCalculationDate != nil {
		next := schedule.NextCalculationDate.UTC()
		schedule.NextCalculationDate = &next
	}
}

var _ core.Storage = (*GormStorage)(nil)
