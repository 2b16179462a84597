// Package ics converts between calendar models and iCalendar feeds. A feed
// can seed the baseline layer of an aggregation, and a finished model can be
// exported so ordinary calendar clients can show it.
package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "statuscal/internal/log"
	"statuscal/internal/model"
)

// baselineEvent is the normalized form of one VEVENT before recurrence
// expansion.
type baselineEvent struct {
	UID    string
	Status model.StatusClass
	Title  string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
}

// ParseBaseline reads baseline entries from an iCalendar body.
//
//   - The status comes from the first known CATEGORIES value, else ACTIVE.
//   - SUMMARY becomes the task title.
//   - All-day DTEND is exclusive, so a one-day event covers one day.
//   - RRULE/EXDATE are expanded inside the configured window.
//
// Events that cannot be read are logged and skipped.
func ParseBaseline(body []byte, opts ...Option) ([]model.BaselineEntry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cfg := newConfig(opts)

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	events := make([]baselineEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, cfg.location)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "uid", comp.Id(), "error", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	entries := expandBaseline(events, cfg)
	appLog.Info("ics baseline parsed", "event_count", len(events), "entry_count", len(entries))
	return entries, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (baselineEvent, error) {
	var out baselineEvent
	out.UID = ve.Id()
	out.Status = statusFromCategories(ve.GetProperties(ical.ComponentPropertyCategories))

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = strings.TrimSpace(p.Value)
	}

	out.AllDay = isAllDay(ve.GetProperty(ical.ComponentPropertyDtStart))

	if out.AllDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, err
		}
		out.Start = anchor(start, loc)
		if end, err := ve.GetAllDayEndAt(); err == nil {
			out.End = anchor(end, loc)
		}
		// DTEND is exclusive for all-day events.
		if out.End.After(out.Start) {
			out.End = out.End.AddDate(0, 0, -1)
		} else {
			out.End = out.Start
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.Start = start.In(loc)
		if end, err := ve.GetEndAt(); err == nil && end.After(start) {
			out.End = end.In(loc)
		} else {
			out.End = out.Start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	return out, nil
}

// statusFromCategories picks the first category naming a status class.
func statusFromCategories(props []*ical.IANAProperty) model.StatusClass {
	for _, p := range props {
		for _, v := range strings.Split(p.Value, ",") {
			switch s := model.StatusClass(strings.ToUpper(strings.TrimSpace(v))); s {
			case model.StatusActive, model.StatusIdle, model.StatusOOO:
				return s
			}
		}
	}
	return model.StatusActive
}

func isAllDay(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// anchor keeps the calendar date of t but places it at midnight in loc.
// All-day values carry no zone, so the library parses them in time.Local.
func anchor(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// parseICSTime parses a bare DATE or DATE-TIME value as used by EXDATE.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
