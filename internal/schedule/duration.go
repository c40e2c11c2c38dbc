package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

var timeUnits = map[string]time.Duration{
	"ns":           time.Nanosecond,
	"nanoseconds":  time.Nanosecond,
	"us":           time.Microsecond,
	"microseconds": time.Microsecond,
	"ms":           time.Millisecond,
	"milliseconds": time.Millisecond,
	"s":            time.Second,
	"seconds":      time.Second,
	"m":            time.Minute,
	"minutes":      time.Minute,
	"h":            time.Hour,
	"hours":        time.Hour,
	"d":            24 * time.Hour,
	"days":         24 * time.Hour,
}

// ParseTimeUnit returns the unit used for integer delays. Empty means
// milliseconds.
func ParseTimeUnit(raw string) (time.Duration, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return time.Millisecond, nil
	}
	unit, ok := timeUnits[raw]
	if !ok {
		return 0, fmt.Errorf("unknown time unit %q", raw)
	}
	return unit, nil
}

// ParseDuration accepts an ISO-8601 duration (PT10S), a Go duration (10s) or
// a plain integer expressed in unit.
func ParseDuration(raw string, unit time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		limit := math.MaxInt64 / int64(unit)
		if n > limit || n < -limit {
			return 0, fmt.Errorf("duration %q overflows", raw)
		}
		return time.Duration(n) * unit, nil
	}

	upper := strings.ToUpper(raw)
	if strings.HasPrefix(upper, "P") || strings.HasPrefix(upper, "-P") {
		d, err := duration.Parse(upper)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", raw, err)
		}
		if isoHours(d) >= maxHours {
			return 0, fmt.Errorf("duration %q overflows", raw)
		}
		return d.ToTimeDuration(), nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
}

// maxHours is the longest time.Duration, in hours.
var maxHours = float64(math.MaxInt64) / float64(time.Hour)

// isoHours is the magnitude of d in hours, using the 365-day year of the
// duration package.
func isoHours(d *duration.Duration) float64 {
	const day = 24.0
	return d.Years*365*day +
		d.Months*365*day/12 +
		d.Weeks*7*day +
		d.Days*day +
		d.Hours +
		d.Minutes/60 +
		d.Seconds/3600
}
