// Package calendar publishes the materialized executions of a schedule as an
// iCalendar (RFC 5545) feed, so the upcoming firings of a device schedule can
// be subscribed to from any calendar client.
package calendar

import (
	"context"
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/jdziat/device-schedules/pkg/core"
)

const (
	DefaultProductID = "-//device-schedules//schedules//EN"
	// DefaultLimit caps the number of events in one feed.
	DefaultLimit = 100
	uidDomain    = "device-schedules"
)

// Feed renders executions as VEVENTs.
type Feed struct {
	// ProductID is the PRODID of the calendar. Empty means DefaultProductID.
	ProductID string
	// Duration gives every event a DTEND. Zero leaves events as instants.
	Duration time.Duration
}

// Upcoming loads up to limit executions of a schedule at or after now,
// soonest first. A limit <= 0 means DefaultLimit.
func Upcoming(ctx context.Context, store core.ExecutionStore, scheduleID string, now time.Time, limit int) ([]core.ScheduledExecution, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out, err := store.NearestExecutions(ctx, scheduleID, now, core.AtOrAfter, limit)
	if err != nil {
		return nil, core.StoreFailure("upcoming executions", err)
	}
	return out, nil
}

// Write serializes executions of s to w. stamp becomes the DTSTAMP of every
// event.
func (f Feed) Write(w io.Writer, s *core.Schedule, executions []core.ScheduledExecution, stamp time.Time) error {
	prodID := f.ProductID
	if prodID == "" {
		prodID = DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetXWRCalName(title(s))

	for _, ex := range executions {
		ev := cal.AddEvent(fmt.Sprintf("%s@%s", ex.ID, uidDomain))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(ex.Timestamp.UTC())
		if f.Duration > 0 {
			ev.SetEndAt(ex.Timestamp.UTC().Add(f.Duration))
		}
		ev.SetSummary(title(s))
		ev.SetDescription(s.TimeExpression)
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("calendar: write %s: %w", s.ID, err)
	}
	return nil
}

func title(s *core.Schedule) string {
	if s.Caption != "" {
		return s.Caption
	}
	return s.TimeExpression
}
