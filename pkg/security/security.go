// Package security provides validation, sanitization, and limits for the schedules package.
package security

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jdziat/device-schedules/pkg/core"
)

// Security limits and configuration
const (
	// MaxRuleLength is the maximum length for a recurrence rule
	MaxRuleLength = 1024

	// MaxConcurrency is the hard limit for sweep concurrency
	MaxConcurrency = 1000

	// MaxContextSize is the hard limit for execution window queries
	MaxContextSize = 100

	// MaxErrorMessageLength is the maximum length for logged error messages
	MaxErrorMessageLength = 4096

	// MaxTimezoneLength is the maximum length for IANA zone names
	MaxTimezoneLength = 64
)

// ValidateRule checks that a recurrence rule is present, bounded in length,
// and free of control characters other than line breaks.
func ValidateRule(rule string) error {
	if strings.TrimSpace(rule) == "" {
		return fmt.Errorf("%w: empty rule", core.ErrInvalidRule)
	}
	if len(rule) > MaxRuleLength {
		return core.ErrRuleTooLong
	}
	if !utf8.ValidString(rule) {
		return fmt.Errorf("%w: not valid UTF-8", core.ErrInvalidRule)
	}
	for _, r := range rule {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if r < 32 || r == 127 {
			return fmt.Errorf("%w: control character in rule", core.ErrInvalidRule)
		}
	}
	return nil
}

// ValidateTimezone checks that name is empty (UTC) or a loadable IANA zone.
func ValidateTimezone(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > MaxTimezoneLength {
		return &core.TimezoneError{Name: name, Err: fmt.Errorf("longer than %d bytes", MaxTimezoneLength)}
	}
	if _, err := time.LoadLocation(name); err != nil {
		return &core.TimezoneError{Name: name, Err: err}
	}
	return nil
}

// ValidateValidity checks that the validity end, when set, is not before the start.
func ValidateValidity(start time.Time, end *time.Time) error {
	if start.IsZero() {
		return fmt.Errorf("%w: validity start is required", core.ErrInvalidValidity)
	}
	if end != nil && end.Before(start) {
		return core.ErrInvalidValidity
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for logs and events
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// ClampContextSize ensures a window query size is within limits
func ClampContextSize(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxContextSize {
		return MaxContextSize
	}
	return n
}

// ValidateSchedule runs the rule, validity and owner time zone checks on s.
func ValidateSchedule(s *core.Schedule) error {
	if err := ValidateRule(s.TimeExpression); err != nil {
		return err
	}
	if err := ValidateValidity(s.DateStart, s.DateEnd); err != nil {
		return err
	}
	if s.User != nil {
		return ValidateTimezone(s.User.Timezone)
	}
	return nil
}
