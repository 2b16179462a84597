package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "statuscal/internal/log"
	"statuscal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500
	defaultWindowDays             = 366
)

// Option configures ParseBaseline.
type Option func(*config)

type config struct {
	location *time.Location

	// Recurring events are expanded inside [rangeStart, rangeEnd].
	rangeStart time.Time
	rangeEnd   time.Time

	maxOccurrences int
}

// WithLocation sets the zone that all-day dates and floating times are
// read in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithWindow bounds recurrence expansion. Defaults to one year either side
// of now.
func WithWindow(start, end time.Time) Option {
	return func(c *config) {
		c.rangeStart = start
		c.rangeEnd = end
	}
}

// WithMaxOccurrences caps the instances produced by one recurring event.
func WithMaxOccurrences(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxOccurrences = n
		}
	}
}

func newConfig(opts []Option) config {
	c := config{
		location:       time.Local,
		maxOccurrences: defaultMaxOccurrencesPerEvent,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.rangeStart.IsZero() || c.rangeEnd.IsZero() || c.rangeEnd.Before(c.rangeStart) {
		now := time.Now().In(c.location)
		c.rangeStart = now.AddDate(0, 0, -defaultWindowDays)
		c.rangeEnd = now.AddDate(0, 0, defaultWindowDays)
	}
	return c
}

// expandBaseline turns parsed events into baseline entries. Non-recurring
// events map one to one; recurring events yield one entry per occurrence.
func expandBaseline(events []baselineEvent, cfg config) []model.BaselineEntry {
	out := make([]model.BaselineEntry, 0, len(events))
	for _, ev := range events {
		if ev.RawRRule == "" {
			out = append(out, entryFor(ev, ev.Start, ev.End))
			continue
		}
		occ, hitCap := expandRecurring(ev, cfg)
		if hitCap {
			appLog.Error("ics: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", cfg.maxOccurrences,
			)
		}
		out = append(out, occ...)
	}
	return out
}

func expandRecurring(ev baselineEvent, cfg config) ([]model.BaselineEntry, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(cfg.rangeStart.In(ev.Start.Location()), cfg.rangeEnd.In(ev.Start.Location()), true)
	hitCap := false
	if len(starts) > cfg.maxOccurrences {
		starts = starts[:cfg.maxOccurrences]
		hitCap = true
	}

	span := ev.End.Sub(ev.Start)
	out := make([]model.BaselineEntry, 0, len(starts))
	for _, s := range starts {
		end := s.Add(span)
		if ev.AllDay {
			// Keep the day count across DST shifts.
			days := int(span.Round(24*time.Hour) / (24 * time.Hour))
			end = s.AddDate(0, 0, days)
		}
		out = append(out, entryFor(ev, s, end))
	}
	return out, hitCap
}

func entryFor(ev baselineEvent, start, end time.Time) model.BaselineEntry {
	e := model.BaselineEntry{
		Status:    ev.Status,
		StartTime: model.Instant{Time: start},
		EndTime:   model.Instant{Time: end},
	}
	if ev.Status == model.StatusActive {
		e.TaskTitle = ev.Title
	}
	return e
}
