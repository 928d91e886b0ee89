package telemetry

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dayPrefix = regexp.MustCompile(`^(\d+)\s*days?,?\s+(.+)$`)
	clockHMS  = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})(?:[.,](\d{1,9}))?$`)
	clockMS   = regexp.MustCompile(`^(\d+):(\d{1,2})(?:[.,](\d{1,9}))?$`)
)

// Normalize coerces one raw cell into a duration. It never fails loudly: ok
// is false for anything that is not a duration string, a time of day or an
// elapsed value.
func Normalize(c Cell) (time.Duration, bool) {
	switch v := c.(type) {
	case Text:
		return ParseDuration(string(v))
	case TimeOfDay:
		// a lap time typed as a clock is read as time elapsed since 00:00:00
		d := time.Duration(v.Hour)*time.Hour +
			time.Duration(v.Minute)*time.Minute +
			time.Duration(v.Second)*time.Second +
			time.Duration(v.Nanosecond)
		return d, true
	case Elapsed:
		return time.Duration(v), v >= 0
	default:
		return 0, false
	}
}

// ParseDuration parses clock strings ("00:01:23.456", "1:23.456", "1 day 00:00:05")
// and unit strings ("1m23.456s"). Negative values are rejected.
func ParseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return 0, false
	}
	var days time.Duration
	if m := dayPrefix.FindStringSubmatch(s); m != nil {
		var ok bool
		if days, ok = field(m[1], 24*time.Hour); !ok {
			return 0, false
		}
		s = strings.TrimSpace(m[2])
	}
	if m := clockHMS.FindStringSubmatch(s); m != nil {
		h, okH := field(m[1], time.Hour)
		mi, okM := field(m[2], time.Minute)
		sec, okS := field(m[3], time.Second)
		if !okH || !okM || !okS || mi >= time.Hour || sec >= time.Minute {
			return 0, false
		}
		return sum(days, h, mi, sec, fraction(m[4]))
	}
	if m := clockMS.FindStringSubmatch(s); m != nil {
		mi, okM := field(m[1], time.Minute)
		sec, okS := field(m[2], time.Second)
		if !okM || !okS || sec >= time.Minute {
			return 0, false
		}
		return sum(days, mi, sec, fraction(m[3]))
	}
	if days > 0 {
		// "N days" must be followed by a clock
		return 0, false
	}
	d, err := time.ParseDuration(strings.ReplaceAll(s, " ", ""))
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

// field parses a run of digits as a count of unit, rejecting values that
// do not fit in a time.Duration.
func field(digits string, unit time.Duration) (time.Duration, bool) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 || n > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// sum adds non-negative durations, failing instead of wrapping.
func sum(parts ...time.Duration) (time.Duration, bool) {
	var total time.Duration
	for _, d := range parts {
		if d < 0 || d > math.MaxInt64-total {
			return 0, false
		}
		total += d
	}
	return total, true
}

// fraction turns the digits after the decimal point into nanoseconds.
func fraction(digits string) time.Duration {
	if digits == "" {
		return 0
	}
	for len(digits) < 9 {
		digits += "0"
	}
	n, err := strconv.Atoi(digits[:9])
	if err != nil {
		return 0
	}
	return time.Duration(n)
}
