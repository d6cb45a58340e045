// Package worker provides the periodic sweep for the schedules package.
//
// A Worker polls storage for enabled schedules whose next calculation date
// has passed and materializes them through the engine:
//   - bounded parallelism (errgroup) and an optional start rate (x/time/rate)
//   - cancellation between schedules, never in the middle of one
//   - store reads and passes that failed in storage retried with backoff
//   - exhausted schedules disabled once their validity is over, postponed otherwise
//
// Most users should import the root package github.com/jdziat/device-schedules
// which re-exports NewWorker and its options.
package worker
