package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/jdziat/device-schedules/pkg/core"
)

// RRule evaluates RFC 5545 recurrence rules with github.com/teambition/rrule-go.
//
// OccurrencesFrom expands a rule without DTSTART from the given anchor, so
// COUNT and INTERVAL hold across windows. OccurrencesBetween has no anchor and
// starts such a rule at local midnight of the day holding the exclusive start.
type RRule struct {
	// MaxOccurrences bounds unbounded requests. Zero means DefaultMaxOccurrences.
	MaxOccurrences int
}

// IsRRule reports whether s looks like an RFC 5545 rule rather than a cron
// expression.
func IsRRule(s string) bool {
	u := strings.ToUpper(strings.TrimSpace(s))
	return strings.HasPrefix(u, "RRULE:") ||
		strings.HasPrefix(u, "FREQ=") ||
		strings.HasPrefix(u, "DTSTART")
}

// Validate reports whether s parses as a recurrence rule.
func (r RRule) Validate(s string) error {
	_, err := r.build(s, time.Now().UTC())
	return err
}

// OccurrencesBetween implements core.RuleEvaluator.
func (r RRule) OccurrencesBetween(s string, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error) {
	midnight := time.Date(exclusiveStart.Year(), exclusiveStart.Month(), exclusiveStart.Day(), 0, 0, 0, 0, exclusiveStart.Location())
	return r.OccurrencesFrom(s, midnight, exclusiveStart, inclusiveEnd, maxCount)
}

// OccurrencesFrom implements core.AnchoredRuleEvaluator.
func (r RRule) OccurrencesFrom(s string, anchor, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error) {
	between, err := r.build(s, anchor)
	if err != nil {
		return nil, err
	}

	limit := effectiveLimit(maxCount, r.MaxOccurrences)
	out := make([]time.Time, 0)
	for _, t := range between(exclusiveStart, inclusiveEnd) {
		if !t.After(exclusiveStart) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, t.In(exclusiveStart.Location()))
	}
	return out, nil
}

type betweenFunc func(after, before time.Time) []time.Time

// build parses s. anchor becomes DTSTART, and its location the rule's zone,
// unless s carries its own DTSTART.
func (r RRule) build(s string, anchor time.Time) (betweenFunc, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "\n") || strings.HasPrefix(strings.ToUpper(s), "DTSTART") {
		set, err := rrule.StrToRRuleSet(s)
		if err != nil {
			return nil, invalidRule(s, err)
		}
		return func(after, before time.Time) []time.Time {
			return set.Between(after, before, true)
		}, nil
	}

	body := s
	if len(body) >= len("RRULE:") && strings.EqualFold(body[:len("RRULE:")], "RRULE:") {
		body = body[len("RRULE:"):]
	}
	opt, err := rrule.StrToROptionInLocation(body, anchor.Location())
	if err != nil {
		return nil, invalidRule(s, err)
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = anchor
	}
	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, invalidRule(s, err)
	}
	return func(after, before time.Time) []time.Time {
		return rr.Between(after, before, true)
	}, nil
}

func invalidRule(s string, err error) error {
	return core.EvaluatorFailure(s, fmt.Errorf("%w: %v", core.ErrInvalidRule, err))
}
