// Package core provides the fundamental types and interfaces for the schedules package.
//
// This package contains:
//   - User, Channel, Schedule and ScheduledExecution data models with GORM annotations
//   - Storage interface defining the persistence contract
//   - RuleEvaluator interface for expanding recurrence rules
//   - Horizon and Clock helpers for explicit time handling
//   - Event types emitted by the recurrence engine
//   - Error types for materialization and lifecycle operations
//
// Most users should import the root package github.com/jdziat/device-schedules
// instead of this package directly.
package core
