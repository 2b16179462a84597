// Package query answers the two questions the calendar widget asks about a
// day: which tile class to paint, and what to say when the day is clicked.
// Everything here is read-only over a finished model.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"statuscal/internal/daykey"
	"statuscal/internal/model"
	"statuscal/internal/upstream"
)

// HolidayClass is the tile class of every Sunday, whatever the model says.
const HolidayClass = "sunday"

// Kind says which branch a day description took.
type Kind int

const (
	KindNone Kind = iota
	KindHoliday
	KindOOO
	KindIdle
	KindActive
)

func (k Kind) String() string {
	switch k {
	case KindHoliday:
		return "holiday"
	case KindOOO:
		return "ooo"
	case KindIdle:
		return "idle"
	case KindActive:
		return "active"
	default:
		return "none"
	}
}

// Description is the explanation shown for a clicked day.
type Description struct {
	Kind     Kind
	Date     string
	Headline string
	Items    []string
	Link     string
}

// String renders the description as plain text, one item per line.
func (d Description) String() string {
	if len(d.Items) == 0 {
		return d.Headline
	}
	var b strings.Builder
	b.WriteString(d.Headline)
	for _, item := range d.Items {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
	return b.String()
}

// Calendar is a read-only view over one model.
type Calendar struct {
	model        *model.CalendarDayModel
	norm         *daykey.Normalizer
	taskLinkBase string
}

// New returns a view over m. taskLinkBase builds a fallback task link when
// the task reference has none; empty disables it.
func New(m *model.CalendarDayModel, norm *daykey.Normalizer, taskLinkBase string) *Calendar {
	if m == nil {
		m = model.NewCalendarDayModel()
	}
	return &Calendar{
		model:        m,
		norm:         norm,
		taskLinkBase: strings.TrimRight(taskLinkBase, "/"),
	}
}

// TileClass returns the class to paint for day, or false for none.
func (c *Calendar) TileClass(day daykey.Key) (string, bool) {
	if c.norm.Weekday(day) == time.Sunday {
		return HolidayClass, true
	}
	if status, ok := c.model.StatusByDay[day]; ok && status != "" {
		return string(status), true
	}
	if len(c.model.DetailsByDay[day]) > 0 {
		return string(model.StatusOOO), true
	}
	return "", false
}

// DescribeDay explains day for the given identity.
func (c *Calendar) DescribeDay(day daykey.Key, who model.Identity) Description {
	date := c.dateString(day)
	user := who.String()
	d := Description{Date: date}

	if c.norm.Weekday(day) == time.Sunday {
		d.Kind = KindHoliday
		d.Headline = fmt.Sprintf("%s is HOLIDAY(SUNDAY)!", date)
		return d
	}

	status := c.model.StatusByDay[day]
	details := c.model.DetailsByDay[day]

	if status == model.StatusOOO || len(details) > 0 {
		d.Kind = KindOOO
		d.Headline = fmt.Sprintf("%s is OOO on %s", user, date)
		for _, o := range details {
			d.Items = append(d.Items, c.oooLine(o))
		}
		return d
	}

	if status == model.StatusIdle {
		d.Kind = KindIdle
		d.Headline = fmt.Sprintf("%s is IDLE on %s", user, date)
		return d
	}

	label, hasLabel := c.model.LabelByDay[day]
	if status == model.StatusActive || hasLabel {
		d.Kind = KindActive
		ref, hasRef := c.model.TaskByDay[day]
		if !hasRef {
			d.Headline = fmt.Sprintf("%s is ACTIVE on %s having task with title - %s", user, date, label)
			return d
		}
		if ref.Title != "" {
			label = ref.Title
		}
		d.Headline = fmt.Sprintf("%s is ACTIVE on %s", user, date)
		d.Items = []string{
			"Task: " + label,
			"Start Date: " + c.optionalDate(ref.StartedOn),
			"End Date: " + c.optionalDate(ref.EndsOn),
		}
		d.Link = c.taskLink(ref)
		if d.Link != "" {
			d.Items = append(d.Items, "Link: "+d.Link)
		}
		return d
	}

	d.Headline = fmt.Sprintf("No user status found for %s on %s!", user, date)
	return d
}

func (c *Calendar) oooLine(o model.OOODetail) string {
	var b strings.Builder
	b.WriteString("Request ")
	if o.RequestID != "" {
		b.WriteString(o.RequestID)
	} else {
		b.WriteString("(no id)")
	}
	b.WriteString(": ")
	b.WriteString(c.optionalDate(o.From))
	b.WriteString(" to ")
	b.WriteString(c.optionalDate(o.Until))
	if msg := strings.TrimSpace(o.Message); msg != "" {
		b.WriteString(" (")
		b.WriteString(msg)
		b.WriteString(")")
	}
	return b.String()
}

func (c *Calendar) taskLink(ref model.TaskRef) string {
	if ref.Link != "" {
		return ref.Link
	}
	if c.taskLinkBase == "" || ref.TaskID == "" {
		return ""
	}
	return c.taskLinkBase + "/" + ref.TaskID
}

func (c *Calendar) dateString(day daykey.Key) string {
	return formatDate(day.Time(c.norm.Location()))
}

func (c *Calendar) optionalDate(t time.Time) string {
	if t.IsZero() {
		return "Not specified"
	}
	return formatDate(t.In(c.norm.Location()))
}

// formatDate renders "8-May-2024".
func formatDate(t time.Time) string {
	return fmt.Sprintf("%d-%s-%d", t.Day(), t.Format("Jan"), t.Year())
}

// NoLogsMessage is shown when a traversal finished without a match.
func NoLogsMessage(who model.Identity) string {
	return fmt.Sprintf("No logs found for %s", who)
}

// FailureMessage is the generic notice for a failed aggregation. It never
// leaks upstream details to the user.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, upstream.ErrTransport) {
		return "Unable to fetch logs right now."
	}
	return "Something went wrong while building the calendar."
}
