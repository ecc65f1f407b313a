// Package temporal parses event timestamps of unknown representation and
// derives the time-of-day features used by the anomaly model.
package temporal

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/1sec-project/instatrace/internal/core"
)

// DefaultDate stands in for timestamps that cannot be recovered so that every
// event still receives temporal features.
var DefaultDate = core.DefaultDate

// Layouts are tried in order; the first successful parse wins.
var Layouts = []string{
	"2006-01-02 15:04:05 UTC",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Epoch values above this are treated as milliseconds.
const millisThreshold = 1e12

// Features are the temporal features of one event.
type Features struct {
	Hour      int
	DayOfWeek int // Monday = 0
	IsWeekend bool
	IsNight   bool
	Imputed   bool
}

// Parse converts v into a time. It accepts time values, strings in one of
// Layouts and numeric Unix epochs. A string carrying a UTC offset keeps it, so
// hour and weekday are those of the source's local clock; zone-less layouts
// and epochs are UTC. It never panics.
func Parse(v interface{}) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()

	switch tv := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if tv.IsZero() {
			return time.Time{}, false
		}
		return tv, true
	case *time.Time:
		if tv == nil || tv.IsZero() {
			return time.Time{}, false
		}
		return *tv, true
	case string:
		return parseString(tv)
	case json.Number:
		f, err := tv.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case float64:
		return fromEpoch(tv)
	case int64:
		return fromEpoch(float64(tv))
	case int:
		return fromEpoch(float64(tv))
	}
	return time.Time{}, false
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f >= millisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// Hour returns the hour of day of v in [0, 23], or -1 when v is not a
// recoverable timestamp.
func Hour(v interface{}) int {
	t, ok := Parse(v)
	if !ok {
		return -1
	}
	return t.Hour()
}

// Weekday returns the Monday-based day of week in [0, 6].
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// IsNight reports whether hour falls in the night window [22, 6).
func IsNight(hour int) bool {
	return hour < 6 || hour >= 22
}

// IsWeekend reports whether a Monday-based day of week is Saturday or Sunday.
func IsWeekend(dow int) bool {
	return dow == 5 || dow == 6
}

// Derive computes the temporal features for ts in its own location,
// substituting DefaultDate when ts is nil.
func Derive(ts *time.Time) Features {
	t := DefaultDate
	imputed := true
	if ts != nil && !ts.IsZero() {
		t = *ts
		imputed = false
	}
	dow := Weekday(t)
	return Features{
		Hour:      t.Hour(),
		DayOfWeek: dow,
		IsWeekend: IsWeekend(dow),
		IsNight:   IsNight(t.Hour()),
		Imputed:   imputed,
	}
}
