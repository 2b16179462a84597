package query

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statuscal/internal/daykey"
	"statuscal/internal/model"
	"statuscal/internal/upstream"
)

var (
	norm  = daykey.New(time.UTC)
	alice = model.Identity{ID: "u1", Username: "alice"}

	sunday    = norm.Of(time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC))
	monday    = norm.AddDays(sunday, 1)
	tuesday   = norm.AddDays(sunday, 2)
	wednesday = norm.AddDays(sunday, 3)
	thursday  = norm.AddDays(sunday, 4)
	friday    = norm.AddDays(sunday, 5)
)

func fixture() *model.CalendarDayModel {
	m := model.NewCalendarDayModel()
	for _, d := range []daykey.Key{sunday, monday, tuesday} {
		m.StatusByDay[d] = model.StatusActive
		m.LabelByDay[d] = "Build calendar"
	}
	m.TaskByDay[monday] = model.TaskRef{
		TaskID:    "t1",
		Title:     "Build calendar",
		StartedOn: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
		EndsOn:    time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC),
	}

	m.StatusByDay[wednesday] = model.StatusOOO
	m.LabelByDay[wednesday] = "Stale"
	m.DetailsByDay[wednesday] = []model.OOODetail{
		{RequestID: "R1", From: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC), Until: time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), Message: "travel"},
		{RequestID: "R2", From: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC), Until: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)},
	}
	// Details without an explicit status still read as OOO.
	m.DetailsByDay[thursday] = []model.OOODetail{{RequestID: "R3"}}

	m.StatusByDay[friday] = model.StatusIdle
	return m
}

func TestTileClass(t *testing.T) {
	c := New(fixture(), norm, "")

	tests := []struct {
		day  daykey.Key
		want string
		ok   bool
	}{
		{sunday, HolidayClass, true},
		{monday, "ACTIVE", true},
		{wednesday, "OOO", true},
		{thursday, "OOO", true},
		{friday, "IDLE", true},
		{norm.AddDays(sunday, 6), "", false},
		{norm.AddDays(sunday, 7), HolidayClass, true},
	}
	for _, tt := range tests {
		got, ok := c.TileClass(tt.day)
		assert.Equal(t, tt.ok, ok, "day %d", tt.day)
		assert.Equal(t, tt.want, got, "day %d", tt.day)
	}
}

func TestSundayIsHolidayWhateverTheModelSays(t *testing.T) {
	m := model.NewCalendarDayModel()
	m.StatusByDay[sunday] = model.StatusOOO
	m.DetailsByDay[sunday] = []model.OOODetail{{RequestID: "R9"}}
	c := New(m, norm, "")

	class, ok := c.TileClass(sunday)
	require.True(t, ok)
	assert.Equal(t, HolidayClass, class)

	d := c.DescribeDay(sunday, alice)
	assert.Equal(t, KindHoliday, d.Kind)
	assert.Equal(t, "5-May-2024 is HOLIDAY(SUNDAY)!", d.Headline)
}

func TestDescribeOOOListsEveryRequest(t *testing.T) {
	d := New(fixture(), norm, "").DescribeDay(wednesday, alice)

	assert.Equal(t, KindOOO, d.Kind)
	assert.Equal(t, "alice is OOO on 8-May-2024", d.Headline)
	require.Len(t, d.Items, 2)
	assert.Equal(t, "Request R1: 8-May-2024 to 9-May-2024 (travel)", d.Items[0])
	assert.Equal(t, "Request R2: 8-May-2024 to 8-May-2024", d.Items[1])

	d = New(fixture(), norm, "").DescribeDay(thursday, alice)
	assert.Equal(t, KindOOO, d.Kind)
	assert.Equal(t, []string{"Request R3: Not specified to Not specified"}, d.Items)
}

func TestDescribeActiveWithTaskReference(t *testing.T) {
	d := New(fixture(), norm, "https://status.example.com/tasks/").DescribeDay(monday, alice)

	assert.Equal(t, KindActive, d.Kind)
	assert.Equal(t, "alice is ACTIVE on 6-May-2024", d.Headline)
	assert.Equal(t, []string{
		"Task: Build calendar",
		"Start Date: 6-May-2024",
		"End Date: 7-May-2024",
		"Link: https://status.example.com/tasks/t1",
	}, d.Items)
	assert.Equal(t, "https://status.example.com/tasks/t1", d.Link)
}

func TestDescribeActivePrefersDetailLink(t *testing.T) {
	m := fixture()
	ref := m.TaskByDay[monday]
	ref.Link = "https://github.com/org/repo/issues/1"
	ref.EndsOn = time.Time{}
	m.TaskByDay[monday] = ref

	d := New(m, norm, "https://status.example.com/tasks").DescribeDay(monday, alice)
	assert.Equal(t, "https://github.com/org/repo/issues/1", d.Link)
	assert.Contains(t, d.Items, "End Date: Not specified")
}

func TestDescribeActiveBareTitle(t *testing.T) {
	d := New(fixture(), norm, "").DescribeDay(tuesday, alice)
	assert.Equal(t, KindActive, d.Kind)
	assert.Equal(t, "alice is ACTIVE on 7-May-2024 having task with title - Build calendar", d.Headline)
	assert.Empty(t, d.Items)
	assert.Equal(t, d.Headline, d.String())
}

func TestDescribeIdleAndNone(t *testing.T) {
	c := New(fixture(), norm, "")

	d := c.DescribeDay(friday, alice)
	assert.Equal(t, KindIdle, d.Kind)
	assert.Equal(t, "alice is IDLE on 10-May-2024", d.Headline)

	d = c.DescribeDay(norm.AddDays(sunday, 6), alice)
	assert.Equal(t, KindNone, d.Kind)
	assert.Equal(t, "No user status found for alice on 11-May-2024!", d.Headline)
}

func TestDescribeIsIdempotent(t *testing.T) {
	c := New(fixture(), norm, "https://x/tasks")
	assert.Equal(t, c.DescribeDay(monday, alice), c.DescribeDay(monday, alice))
}

func TestDescriptionString(t *testing.T) {
	d := Description{Headline: "h", Items: []string{"a", "b"}}
	assert.Equal(t, "h\n- a\n- b", d.String())
}

func TestNilModelIsEmpty(t *testing.T) {
	c := New(nil, norm, "")
	_, ok := c.TileClass(monday)
	assert.False(t, ok)
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "No logs found for alice", NoLogsMessage(alice))
	assert.Equal(t, "Unable to fetch logs right now.", FailureMessage(fmt.Errorf("hop 1: %w", upstream.ErrTransport)))
	assert.NotEmpty(t, FailureMessage(errors.New("other")))
	assert.Empty(t, FailureMessage(nil))
}
