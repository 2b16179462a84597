package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"statuscal/internal/daykey"
)

// Log entry type discriminators used by the upstream log service.
const (
	TypeTask           = "task"
	TypeRequestCreated = "REQUEST_CREATED"
)

// EntryKind classifies a LogEntry for the merge.
type EntryKind int

const (
	KindGeneric EntryKind = iota
	KindTask
	KindOOO
)

// Instant is an upstream timestamp. It decodes seconds, milliseconds,
// date strings and {"_seconds": n} objects; anything it cannot read becomes
// the zero Instant instead of failing the whole payload.
type Instant struct {
	time.Time
}

// InstantOf normalizes any raw value into an Instant.
func InstantOf(v any) Instant {
	t, _ := daykey.NormalizeInstant(v)
	return Instant{Time: t}
}

// Valid reports whether the instant was present and parseable.
func (i Instant) Valid() bool {
	return !i.IsZero()
}

func (i *Instant) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	i.Time = time.Time{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '{':
		var obj struct {
			Seconds    json.Number `json:"_seconds"`
			AltSeconds json.Number `json:"seconds"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil
		}
		sec := obj.Seconds
		if sec == "" {
			sec = obj.AltSeconds
		}
		if n, err := sec.Float64(); err == nil && n != 0 {
			i.Time = time.UnixMilli(int64(n * 1000))
		}
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		i.Time, _ = daykey.NormalizeInstant(s)
	default:
		i.Time, _ = daykey.NormalizeInstant(json.Number(b))
	}
	return nil
}

// MarshalJSON writes epoch seconds, or null for the zero Instant.
func (i Instant) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(i.Unix(), 10)), nil
}

// LogEntry is a raw record from the upstream log service.
type LogEntry struct {
	Type      string  `json:"type"`
	Timestamp Instant `json:"timestamp"`

	// Out-of-office range bounds.
	From  Instant `json:"from"`
	Until Instant `json:"until"`

	TaskID    string  `json:"taskId,omitempty"`
	TaskTitle string  `json:"taskTitle,omitempty"`
	EndsOn    Instant `json:"endsOn"`

	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`

	// Embedded identity of the user the entry is about.
	Username string `json:"user,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// Kind classifies the entry. Only REQUEST_CREATED entries carrying both
// range bounds count as out-of-office.
func (e LogEntry) Kind() EntryKind {
	switch {
	case e.Type == TypeTask:
		return KindTask
	case e.Type == TypeRequestCreated && e.From.Valid() && e.Until.Valid():
		return KindOOO
	default:
		return KindGeneric
	}
}

// BelongsTo reports whether the entry's embedded identity matches id by
// user id or username.
func (e LogEntry) BelongsTo(id Identity) bool {
	if id.ID != "" && e.UserID == id.ID {
		return true
	}
	return id.Username != "" && e.Username == id.Username
}

// TaskDetail is the task record fetched from the entity detail service.
type TaskDetail struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	StartedOn Instant    `json:"startedOn"`
	EndsOn    Instant    `json:"endsOn"`
	GitHub    *GitHubRef `json:"github,omitempty"`
}

// GitHubRef is the nested external issue reference of a task.
type GitHubRef struct {
	Issue *IssueRef `json:"issue,omitempty"`
}

type IssueRef struct {
	HTMLURL string `json:"html_url"`
}

// Link returns the external issue link, if any.
func (d TaskDetail) Link() string {
	if d.GitHub == nil || d.GitHub.Issue == nil {
		return ""
	}
	return d.GitHub.Issue.HTMLURL
}

// Empty reports whether the record carries nothing usable.
func (d TaskDetail) Empty() bool {
	return d.Title == "" && !d.StartedOn.Valid() && !d.EndsOn.Valid()
}

// Bounded reports whether both range bounds are known.
func (d TaskDetail) Bounded() bool {
	return d.StartedOn.Valid() && d.EndsOn.Valid()
}
