package daykey

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "statuscal/internal/log"
)

const defaultMaxSpanDays = 3660

// Normalizer maps instants onto day keys of one display location.
type Normalizer struct {
	loc         *time.Location
	now         func() time.Time
	maxSpanDays int
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used for the "today" substitution.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithMaxSpanDays caps the number of keys a single Expand may return.
func WithMaxSpanDays(days int) Option {
	return func(n *Normalizer) {
		if days > 0 {
			n.maxSpanDays = days
		}
	}
}

// New returns a Normalizer for loc. A nil loc means time.Local.
func New(loc *time.Location, opts ...Option) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	n := &Normalizer{
		loc:         loc,
		now:         time.Now,
		maxSpanDays: defaultMaxSpanDays,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Location returns the display location keys are computed in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Midnight returns local midnight of t's calendar day. A zero t is replaced
// by the current time, so callers never see an error for a missing date.
func (n *Normalizer) Midnight(t time.Time) time.Time {
	if t.IsZero() {
		t = n.now()
	}
	local := t.In(n.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, n.loc)
}

// Of returns the day key of t.
func (n *Normalizer) Of(t time.Time) Key {
	return Key(n.Midnight(t).UnixMilli())
}

// Today returns the key of the current day.
func (n *Normalizer) Today() Key {
	return n.Of(n.now())
}

// FromValue normalizes a raw upstream value and returns its day key.
func (n *Normalizer) FromValue(v any) (Key, bool) {
	t, ok := NormalizeInstant(v)
	if !ok {
		return 0, false
	}
	return n.Of(t), true
}

// AddDays moves k by days calendar days.
func (n *Normalizer) AddDays(k Key, days int) Key {
	t := k.Time(n.loc)
	return Key(time.Date(t.Year(), t.Month(), t.Day()+days, 0, 0, 0, 0, n.loc).UnixMilli())
}

// Weekday reports the local weekday of k.
func (n *Normalizer) Weekday(k Key) time.Weekday {
	return k.Time(n.loc).Weekday()
}

// Expand returns one key per calendar day from start's day through end's
// day inclusive, strictly increasing. It returns nil when either endpoint is
// zero or end falls on an earlier day than start.
//
// Days are generated as a DAILY recurrence anchored at local midnight, so a
// DST shift never skips or repeats a day.
func (n *Normalizer) Expand(start, end time.Time) []Key {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	first := n.Midnight(start)
	last := n.Midnight(end)
	if last.Before(first) {
		return nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
		Count:   n.maxSpanDays,
	})
	if err != nil {
		appLog.Error("daykey: failed to build daily rule", err,
			"start", first.Format(time.RFC3339),
			"end", last.Format(time.RFC3339),
		)
		return nil
	}

	days := r.All()
	keys := make([]Key, 0, len(days))
	for _, d := range days {
		keys = append(keys, n.Of(d))
	}

	if len(keys) == n.maxSpanDays && keys[len(keys)-1] != Key(last.UnixMilli()) {
		appLog.Error("daykey: range truncated due to cap",
			errors.New("max span days reached"),
			"start", first.Format(time.RFC3339),
			"end", last.Format(time.RFC3339),
			"cap", n.maxSpanDays,
		)
	}
	return keys
}

// ExpandOpen is Expand where a zero end means the single day of start.
func (n *Normalizer) ExpandOpen(start, end time.Time) []Key {
	if end.IsZero() {
		end = start
	}
	return n.Expand(start, end)
}
