package core

import (
	"time"
)

// User owns schedules and channels. Its time zone is the zone in which the
// recurrence rules of its schedules are evaluated.
type User struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Timezone  string    `gorm:"size:64;not null;default:'UTC'"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Channel is a device channel that can be targeted by a schedule.
type Channel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;size:36;not null"`
	Function  int       `gorm:"index;not null"`
	Caption   string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Schedule is a recurring plan for a device channel.
//
// NextCalculationDate is owned by the recurrence engine: it tells the periodic
// sweep when the next materialization pass must run.
type Schedule struct {
	ID                  string     `gorm:"primaryKey;size:36"`
	UserID              string     `gorm:"index;size:36;not null"`
	User                *User      `gorm:"foreignKey:UserID"`
	ChannelID           string     `gorm:"index;size:36"`
	Caption             string     `gorm:"size:255"`
	TimeExpression      string     `gorm:"size:1024;not null"`
	DateStart           time.Time  `gorm:"not null"`
	DateEnd             *time.Time
	Enabled             bool       `gorm:"index;default:false"`
	NextCalculationDate *time.Time `gorm:"index"`
	CreatedAt           time.Time  `gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime"`
}

// Location returns the time zone the schedule's rule is evaluated in.
// An unset owner or owner time zone means UTC.
func (s *Schedule) Location() (*time.Location, error) {
	if s.User == nil || s.User.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.User.Timezone)
	if err != nil {
		return nil, &TimezoneError{Name: s.User.Timezone, Err: err}
	}
	return loc, nil
}

// ScheduledExecution is one materialized firing of a schedule.
// Executions are never updated in place; they are only created in batches and
// deleted all at once for a schedule.
type ScheduledExecution struct {
	ID         string    `gorm:"primaryKey;size:36"`
	ScheduleID string    `gorm:"uniqueIndex:idx_schedule_timestamp;size:36;not null"`
	Timestamp  time.Time `gorm:"column:run_at;uniqueIndex:idx_schedule_timestamp;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// Direction selects which side of a reference instant a nearest-executions
// query looks at.
type Direction int

const (
	// Before selects executions strictly before the reference, newest first.
	Before Direction = iota
	// AtOrAfter selects executions at or after the reference, soonest first.
	AtOrAfter
)

func (d Direction) String() string {
	switch d {
	case Before:
		return "before"
	case AtOrAfter:
		return "at_or_after"
	default:
		return "unknown"
	}
}

// ExecutionWindow holds the executions closest to "now" for a schedule.
type ExecutionWindow struct {
	// Past is ordered oldest to newest.
	Past []ScheduledExecution
	// Future is ordered soonest to latest and holds one extra entry beyond
	// the requested context size.
	Future []ScheduledExecution
}

// Materialization describes the outcome of one materialization pass.
type Materialization struct {
	ScheduleID          string
	From                time.Time // exclusive
	Until               time.Time // inclusive
	Executions          []time.Time
	NextCalculationDate time.Time
}
