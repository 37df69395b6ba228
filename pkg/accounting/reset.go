package accounting

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResetTime is the time of day at which daily counters roll over.
type ResetTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseResetTime parses "HH:MM" or "HH:MM:SS".
func ParseResetTime(s string) (ResetTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return ResetTime{}, fmt.Errorf("invalid reset time %q: expected HH:MM", s)
	}
	var vals [3]int
	limits := [3]int{23, 59, 59}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return ResetTime{}, fmt.Errorf("invalid reset time %q: %w", s, err)
		}
		if v < 0 || v > limits[i] {
			return ResetTime{}, fmt.Errorf("invalid reset time %q: component out of range", s)
		}
		vals[i] = v
	}
	return ResetTime{Hour: vals[0], Minute: vals[1], Second: vals[2]}, nil
}

// ResetTimeOrMidnight parses s and falls back to midnight when it is malformed.
func ResetTimeOrMidnight(s string) ResetTime {
	rt, err := ParseResetTime(s)
	if err != nil {
		return ResetTime{}
	}
	return rt
}

// Boundary returns the reset instant on now's calendar day.
func (r ResetTime) Boundary(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), r.Hour, r.Minute, r.Second, 0, now.Location())
}

// Due reports whether a reset must happen at now: today's boundary has passed
// and the last reset happened before it. After resetting at now, Due is false
// until the next day's boundary.
func (r ResetTime) Due(now, lastReset time.Time) bool {
	b := r.Boundary(now)
	return !now.Before(b) && lastReset.Before(b)
}

func (r ResetTime) String() string {
	if r.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", r.Hour, r.Minute, r.Second)
	}
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}
