package rule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jdziat/device-schedules/pkg/core"
)

// DefaultMaxOccurrences caps a single evaluation when the caller asks for an
// unbounded count.
const DefaultMaxOccurrences = 10000

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron evaluates cron expressions with github.com/robfig/cron/v3.
type Cron struct {
	// MaxOccurrences bounds unbounded requests. Zero means DefaultMaxOccurrences.
	MaxOccurrences int
}

// Validate reports whether expr parses as a cron expression.
func (c Cron) Validate(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return core.EvaluatorFailure(expr, fmt.Errorf("%w: %v", core.ErrInvalidRule, err))
	}
	return nil
}

// OccurrencesBetween implements core.RuleEvaluator.
func (c Cron) OccurrencesBetween(expr string, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, core.EvaluatorFailure(expr, fmt.Errorf("%w: %v", core.ErrInvalidRule, err))
	}

	limit := effectiveLimit(maxCount, c.MaxOccurrences)
	var out []time.Time
	next := exclusiveStart
	for len(out) < limit {
		next = schedule.Next(next)
		// robfig returns the zero time when nothing matches within five years.
		if next.IsZero() || next.After(inclusiveEnd) {
			break
		}
		out = append(out, next)
	}
	return out, nil
}

func effectiveLimit(maxCount, ceiling int) int {
	if ceiling <= 0 {
		ceiling = DefaultMaxOccurrences
	}
	if maxCount == core.Unbounded || maxCount > ceiling {
		return ceiling
	}
	return maxCount
}
