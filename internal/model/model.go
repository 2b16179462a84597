package model

import (
	"time"

	"statuscal/internal/daykey"
)

// StatusClass is the tile class of a day. Baseline statuses outside the
// known constants are kept verbatim.
type StatusClass string

const (
	StatusActive StatusClass = "ACTIVE"
	StatusOOO    StatusClass = "OOO"
	StatusIdle   StatusClass = "IDLE"
)

// Identity is a resolved user as handed over by the user directory. The
// engine never resolves identities itself.
type Identity struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
}

// String returns the username when known, else the id.
func (i Identity) String() string {
	if i.Username != "" {
		return i.Username
	}
	return i.ID
}

// IsZero reports whether neither id nor username is set.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Username == ""
}

// Same reports whether two identities refer to the same user.
func (i Identity) Same(o Identity) bool {
	if i.ID != "" && o.ID != "" {
		return i.ID == o.ID
	}
	return i.Username != "" && i.Username == o.Username
}

// BaselineEntry is a caller-supplied status span, e.g. from a demo feed or
// an iCalendar import.
type BaselineEntry struct {
	Status    StatusClass `json:"status"`
	StartTime Instant     `json:"startTime"`
	EndTime   Instant     `json:"endTime"`
	TaskTitle string      `json:"taskTitle,omitempty"`
}

// OOODetail is one out-of-office request covering a day.
type OOODetail struct {
	RequestID string
	From      time.Time
	Until     time.Time
	Message   string
}

// TaskRef is the task behind an ACTIVE day. It is only consumed by the
// presentation layer (links and date ranges in day descriptions).
type TaskRef struct {
	TaskID    string
	Title     string
	StartedOn time.Time
	EndsOn    time.Time
	Link      string

	// Authoritative is true when the reference came from a fetched task
	// detail rather than a bare log entry.
	Authoritative bool
}

// Coverage tags where the task days of a model came from.
type Coverage int

const (
	CoverageNoData Coverage = iota
	CoverageProvisional
	CoverageAuthoritative
)

func (c Coverage) String() string {
	switch c {
	case CoverageProvisional:
		return "provisional"
	case CoverageAuthoritative:
		return "authoritative"
	default:
		return "no_data"
	}
}

// CalendarDayModel is the day-indexed output of one aggregation. It is built
// fresh per query and never mutated afterwards.
type CalendarDayModel struct {
	StatusByDay  map[daykey.Key]StatusClass
	LabelByDay   map[daykey.Key]string
	DetailsByDay map[daykey.Key][]OOODetail
	TaskByDay    map[daykey.Key]TaskRef

	TaskCoverage Coverage
}

// NewCalendarDayModel returns an empty model with all maps allocated.
func NewCalendarDayModel() *CalendarDayModel {
	return &CalendarDayModel{
		StatusByDay:  make(map[daykey.Key]StatusClass),
		LabelByDay:   make(map[daykey.Key]string),
		DetailsByDay: make(map[daykey.Key][]OOODetail),
		TaskByDay:    make(map[daykey.Key]TaskRef),
	}
}

// Empty reports whether no day carries a status.
func (m *CalendarDayModel) Empty() bool {
	return m == nil || len(m.StatusByDay) == 0
}
