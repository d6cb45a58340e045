package core

import "time"

// Unbounded asks a RuleEvaluator for every occurrence inside the window.
const Unbounded = 0

// RuleEvaluator expands a recurrence rule into concrete instants.
//
// OccurrencesBetween returns an ordered, non-decreasing sequence of instants
// strictly after exclusiveStart and at or before inclusiveEnd, holding at
// most maxCount entries (Unbounded for no limit). Rules are evaluated in the
// location of exclusiveStart.
type RuleEvaluator interface {
	OccurrencesBetween(rule string, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error)
}

// RuleEvaluatorFunc adapts a function to the RuleEvaluator interface.
type RuleEvaluatorFunc func(rule string, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error)

func (f RuleEvaluatorFunc) OccurrencesBetween(rule string, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error) {
	return f(rule, exclusiveStart, inclusiveEnd, maxCount)
}

// AnchoredRuleEvaluator is a RuleEvaluator whose rules depend on where the
// recurrence begins, as RRULE COUNT and INTERVAL do. OccurrencesFrom expands
// the rule from anchor and returns only the part inside
// (exclusiveStart, inclusiveEnd], so successive windows continue one
// sequence. A rule that names its own start keeps it and ignores anchor.
type AnchoredRuleEvaluator interface {
	RuleEvaluator
	OccurrencesFrom(rule string, anchor, exclusiveStart, inclusiveEnd time.Time, maxCount int) ([]time.Time, error)
}
