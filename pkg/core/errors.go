package core

import (
	"errors"
	"fmt"
)

// Lifecycle and materialization errors
var (
	ErrInvalidState     = errors.New("schedules: schedule is in an incompatible state")
	ErrEmptyRecurrence  = errors.New("schedules: recurrence produced no executions")
	ErrScheduleNotFound = errors.New("schedules: schedule not found")
)

// Validation errors
var (
	ErrInvalidTimezone = errors.New("schedules: invalid time zone")
	ErrInvalidRule     = errors.New("schedules: invalid recurrence rule")
	ErrRuleTooLong     = errors.New("schedules: recurrence rule too long")
	ErrInvalidValidity = errors.New("schedules: validity end is before validity start")
	ErrInvalidHorizon  = errors.New("schedules: invalid horizon")
)

// StoreError wraps a failure reported by the storage layer.
// The engine never retries these; the underlying error is returned unchanged
// through Unwrap.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("schedules: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// StoreFailure wraps err as a StoreError for the named operation.
// A nil err, or an err that already is a StoreError, is returned as is.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// EvaluatorError indicates that a recurrence rule could not be expanded.
type EvaluatorError struct {
	Rule string
	Err  error
}

func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("schedules: evaluate %q: %v", e.Rule, e.Err)
}

func (e *EvaluatorError) Unwrap() error {
	return e.Err
}

// EvaluatorFailure wraps err as an EvaluatorError for rule.
func EvaluatorFailure(rule string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EvaluatorError
	if errors.As(err, &ee) {
		return err
	}
	return &EvaluatorError{Rule: rule, Err: err}
}

// TimezoneError reports an owner time zone that could not be loaded.
type TimezoneError struct {
	Name string
	Err  error
}

func (e *TimezoneError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrInvalidTimezone, e.Name, e.Err)
}

func (e *TimezoneError) Unwrap() []error {
	return []error{ErrInvalidTimezone, e.Err}
}

// IsStoreFailure reports whether err originated in the storage layer.
func IsStoreFailure(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsEvaluatorFailure reports whether err originated in rule evaluation.
func IsEvaluatorFailure(err error) bool {
	var ee *EvaluatorError
	return errors.As(err, &ee)
}
