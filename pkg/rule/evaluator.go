package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/jdziat/device-schedules/pkg/core"
)

// Evaluator dispatches a rule to RRule when it uses RFC 5545 syntax and to
// Cron otherwise.
type Evaluator struct {
	Cron  Cron
	RRule RRule
}

// NewEvaluator creates an Evaluator whose evaluators share maxOccurrences.
// Zero keeps DefaultMaxOccurrences.
func NewEvaluator(maxOccurrences int) *Evaluator {
	return &Evaluator{
		Cron:  Cron{MaxOccurrences: maxOccurrences},
		RRule: RRule{MaxOccurrences: maxOccurrences},
	}
}

// OccurrencesBetween implements core.RuleEvaluator.
func (e *Evaluator) OccurrencesBetween(rule string, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, core.EvaluatorFailure(rule, core.ErrInvalidRule)
	}
	if IsRRule(rule) {
		return e.RRule.OccurrencesBetween(rule, exclusiveStart, inclusiveEnd, maxCount)
	}
	return e.Cron.OccurrencesBetween(rule, exclusiveStart, inclusiveEnd, maxCount)
}

// OccurrencesFrom implements core.AnchoredRuleEvaluator. Cron expressions
// carry no start of their own, so anchor only affects RRULEs.
func (e *Evaluator) OccurrencesFrom(rule string, anchor, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, core.EvaluatorFailure(rule, core.ErrInvalidRule)
	}
	if IsRRule(rule) {
		return e.RRule.OccurrencesFrom(rule, anchor, exclusiveStart, inclusiveEnd, maxCount)
	}
	return e.Cron.OccurrencesBetween(rule, exclusiveStart, inclusiveEnd, maxCount)
}

// Validate reports whether rule can be evaluated.
func (e *Evaluator) Validate(rule string) error {
	if strings.TrimSpace(rule) == "" {
		return core.EvaluatorFailure(rule, core.ErrInvalidRule)
	}
	if IsRRule(rule) {
		return e.RRule.Validate(rule)
	}
	return e.Cron.Validate(rule)
}

// Every returns a rule firing at fixed intervals.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Daily returns a rule firing at hour:minute local time each day.
func Daily(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// Weekly returns a rule firing at hour:minute local time on day each week.
func Weekly(day time.Weekday, hour, minute int) string {
	return fmt.Sprintf("%d %d * * %d", minute, hour, int(day))
}
