package ics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"statuscal/internal/daykey"
	"statuscal/internal/model"
)

const productID = "-//statuscal//status calendar//EN"

// Export renders m as an iCalendar feed with one all-day event per day that
// has a status. Days are written in ascending order so the output is stable
// apart from DTSTAMP.
func Export(m *model.CalendarDayModel, who model.Identity, loc *time.Location) string {
	return exportAt(m, who, loc, time.Now())
}

func exportAt(m *model.CalendarDayModel, who model.Identity, loc *time.Location, stamp time.Time) string {
	if loc == nil {
		loc = time.Local
	}
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(fmt.Sprintf("%s status", who))
	cal.SetXWRTimezone(loc.String())

	if m == nil {
		return cal.Serialize()
	}

	days := make([]daykey.Key, 0, len(m.StatusByDay))
	for day := range m.StatusByDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	for _, day := range days {
		status := m.StatusByDay[day]
		start := day.Time(loc)

		ev := cal.AddEvent(fmt.Sprintf("%d-%s@statuscal", day, eventUser(who)))
		ev.SetDtStampTime(stamp)
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
		ev.AddCategory(string(status))

		summary := string(status)
		if label, ok := m.LabelByDay[day]; ok && label != "" && status == model.StatusActive {
			summary = label
		}
		ev.SetSummary(summary)

		if details := m.DetailsByDay[day]; len(details) > 0 {
			ev.SetDescription(describeOOO(details, loc))
		}
		if ref, ok := m.TaskByDay[day]; ok && ref.Link != "" && status == model.StatusActive {
			ev.SetURL(ref.Link)
		}
	}
	return cal.Serialize()
}

func describeOOO(details []model.OOODetail, loc *time.Location) string {
	lines := make([]string, 0, len(details))
	for _, d := range details {
		line := fmt.Sprintf("%s: %s - %s", d.RequestID, isoDate(d.From, loc), isoDate(d.Until, loc))
		if msg := strings.TrimSpace(d.Message); msg != "" {
			line += " " + msg
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func isoDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "?"
	}
	return t.In(loc).Format("2006-01-02")
}

func eventUser(who model.Identity) string {
	if who.ID != "" {
		return who.ID
	}
	return strings.ReplaceAll(who.Username, " ", "_")
}
