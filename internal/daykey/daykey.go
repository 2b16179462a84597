// Package daykey turns loosely typed upstream timestamps into canonical
// local-midnight day keys and expands instant ranges into day sequences.
//
// Nothing in this package returns an error: bad input degrades to an absent
// instant or an empty sequence so the calendar keeps rendering on dirty data.
package daykey

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Key is the Unix millisecond timestamp of local midnight of a calendar day.
// Two instants share a Key iff they fall on the same local calendar day.
type Key int64

// Time returns the midnight instant the key stands for, in loc.
func (k Key) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(int64(k)).In(loc)
}

// secondsThreshold separates epoch seconds from epoch milliseconds. Anything
// below it is read as seconds (1e12 ms is September 2001).
const secondsThreshold = 1e12

var stringLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// NormalizeInstant accepts a number (seconds below 1e12, else milliseconds),
// a numeric or date string, or a time.Time and returns the instant it
// denotes. Zero, empty and unparseable values report false.
func NormalizeInstant(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, !x.IsZero()
	case int:
		return fromNumber(float64(x))
	case int32:
		return fromNumber(float64(x))
	case int64:
		return fromNumber(float64(x))
	case uint32:
		return fromNumber(float64(x))
	case uint64:
		return fromNumber(float64(x))
	case float32:
		return fromNumber(float64(x))
	case float64:
		return fromNumber(x)
	case json.Number:
		return fromString(string(x))
	case string:
		return fromString(x)
	default:
		return time.Time{}, false
	}
}

func fromNumber(f float64) (time.Time, bool) {
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	ms := f
	if f < secondsThreshold {
		ms = f * 1000
	}
	return time.UnixMilli(int64(math.Round(ms))), true
}

func fromString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(f)
	}
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
