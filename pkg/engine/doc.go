// Package engine provides the recurrence engine for the schedules package.
//
// The Engine keeps a rolling window of materialized executions for every
// enabled schedule. It asks a RuleEvaluator for the occurrences between the
// continuation point and the horizon, stores them in one transaction with the
// schedule's next calculation date, and drives the Enabled/Disabled
// lifecycle:
//
//	eng := engine.New(store, engine.WithHorizon(core.Within(7*core.Day)))
//	if _, err := eng.Enable(ctx, schedule); errors.Is(err, core.ErrEmptyRecurrence) {
//		// nothing left to run inside the validity window
//	}
//
// Calls against one schedule are serialized inside the process and run in a
// single storage transaction; different schedules never contend.
//
// Most users should import the root package github.com/jdziat/device-schedules
// which re-exports these types.
package engine
