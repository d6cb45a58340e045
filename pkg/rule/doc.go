// Package rule provides recurrence rule evaluators for schedules.
//
// This package includes:
//   - Cron for cron expressions (five fields or descriptors such as @daily)
//   - RRule for RFC 5545 recurrence rules
//   - Evaluator, which dispatches to either by the rule's syntax
//   - Every, Daily and Weekly builders producing cron expressions
//
// Rules are evaluated in the location of the exclusive start instant, so a
// rule such as "0 9 * * *" keeps meaning local 09:00 across daylight-saving
// transitions.
//
// Most users should import the root package github.com/jdziat/device-schedules
// which re-exports these functions.
package rule
