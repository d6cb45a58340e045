// Package security provides input validation and limits for schedules.
//
// It checks recurrence rules, time zone names and validity intervals before
// they reach the engine, clamps user-supplied sizes, and strips control
// characters from error messages that end up in logs or events.
package security
