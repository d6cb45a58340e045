package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// Day is a 24 hour span. Horizons are measured in absolute time.
const Day = 24 * time.Hour

// DefaultHorizon materializes five days ahead of now.
var DefaultHorizon = Within(5 * Day)

// Horizon is the forward bound of a materialization pass: either an offset
// from "now" or a fixed instant.
type Horizon struct {
	offset time.Duration
	at     time.Time
}

// Within returns a horizon d after the time it is resolved at.
func Within(d time.Duration) Horizon {
	return Horizon{offset: d}
}

// Until returns a horizon fixed at t.
func Until(t time.Time) Horizon {
	return Horizon{at: t}
}

// IsZero reports whether h is the zero Horizon.
func (h Horizon) IsZero() bool {
	return h.offset == 0 && h.at.IsZero()
}

// IsAbsolute reports whether h is a fixed instant.
func (h Horizon) IsAbsolute() bool {
	return !h.at.IsZero()
}

// Offset returns the relative span of h; zero for absolute horizons.
func (h Horizon) Offset() time.Duration {
	return h.offset
}

// Resolve returns the instant h denotes when evaluated at now.
func (h Horizon) Resolve(now time.Time) time.Time {
	if h.IsAbsolute() {
		return h.at
	}
	return now.Add(h.offset)
}

func (h Horizon) String() string {
	if h.IsAbsolute() {
		return h.at.Format(time.RFC3339)
	}
	if h.offset%Day == 0 {
		return fmt.Sprintf("+%d days", h.offset/Day)
	}
	return "+" + h.offset.String()
}

var relativeDays = regexp.MustCompile(`^(\d+)\s*(d|day|days|w|week|weeks)$`)

// ParseHorizon parses a relative horizon such as "+5 days", "+5days",
// "+2 weeks" or "+36h", or an absolute instant in RFC 3339 or any layout
// understood by github.com/jinzhu/now. Absolute instants without a zone are
// read as UTC.
func ParseHorizon(s string) (Horizon, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Horizon{}, fmt.Errorf("%w: empty", ErrInvalidHorizon)
	}

	if rel, ok := strings.CutPrefix(s, "+"); ok {
		rel = strings.ToLower(strings.TrimSpace(rel))
		if m := relativeDays.FindStringSubmatch(rel); m != nil {
			unit := Day
			if strings.HasPrefix(m[2], "w") {
				unit = 7 * Day
			}
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil || n <= 0 || n > math.MaxInt64/int64(unit) {
				return Horizon{}, fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
			}
			return Within(time.Duration(n) * unit), nil
		}
		d, err := time.ParseDuration(strings.ReplaceAll(rel, " ", ""))
		if err != nil || d <= 0 {
			return Horizon{}, fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
		}
		return Within(d), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Until(t), nil
	}
	t, err := now.ParseInLocation(time.UTC, s)
	if err != nil {
		return Horizon{}, fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
	}
	return Until(t), nil
}
