package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statuscal/internal/daykey"
	"statuscal/internal/model"
)

var (
	loc  = time.UTC
	norm = daykey.New(loc)
	// Wednesday 2024-05-08, mid-morning.
	dayD = time.Date(2024, 5, 8, 10, 30, 0, 0, loc)
)

func at(days int) model.Instant {
	return model.Instant{Time: dayD.AddDate(0, 0, days)}
}

func key(days int) daykey.Key {
	return norm.Of(dayD.AddDate(0, 0, days))
}

func taskEntry(id, title string, ts model.Instant, endsOn model.Instant) model.LogEntry {
	return model.LogEntry{Type: model.TypeTask, TaskID: id, TaskTitle: title, Timestamp: ts, EndsOn: endsOn, Username: "alice"}
}

func oooEntry(req string, from, until model.Instant) model.LogEntry {
	return model.LogEntry{Type: model.TypeRequestCreated, RequestID: req, From: from, Until: until, Message: "family visit"}
}

func TestProvisionalFallbackSpansEndsOn(t *testing.T) {
	m := Merge(norm, Input{
		Identity: model.Identity{Username: "alice"},
		RawLog:   []model.LogEntry{taskEntry("t1", "Build calendar", at(0), at(2))},
		Enriched: map[string]model.TaskDetail{},
	})

	assert.Equal(t, model.CoverageProvisional, m.TaskCoverage)
	require.Len(t, m.StatusByDay, 3)
	for i := 0; i <= 2; i++ {
		assert.Equal(t, model.StatusActive, m.StatusByDay[key(i)])
		assert.Equal(t, "Build calendar", m.LabelByDay[key(i)])
		assert.False(t, m.TaskByDay[key(i)].Authoritative)
	}
	assert.Empty(t, m.DetailsByDay)
}

func TestOOORangeRecordsDetailPerDay(t *testing.T) {
	m := Merge(norm, Input{
		Identity: model.Identity{Username: "bob"},
		OOO:      []model.LogEntry{oooEntry("R1", at(0), at(1))},
	})

	for i := 0; i <= 1; i++ {
		require.Len(t, m.DetailsByDay[key(i)], 1)
		assert.Equal(t, "R1", m.DetailsByDay[key(i)][0].RequestID)
		assert.Equal(t, model.StatusOOO, m.StatusByDay[key(i)])
	}
	assert.Len(t, m.StatusByDay, 2)
	assert.Equal(t, model.CoverageNoData, m.TaskCoverage)
}

func TestOOOBeatsActiveRegardlessOfOrder(t *testing.T) {
	active := taskEntry("t1", "Task", at(0), at(3))
	ooo := oooEntry("R1", at(1), at(1))

	orders := [][]model.LogEntry{
		{active, ooo},
		{ooo, active},
	}
	for _, raw := range orders {
		m := Merge(norm, Input{RawLog: raw})
		assert.Equal(t, model.StatusOOO, m.StatusByDay[key(1)])
		assert.Equal(t, model.StatusActive, m.StatusByDay[key(0)])
		assert.Equal(t, model.StatusActive, m.StatusByDay[key(2)])
		// The stale label stays; presentation must prefer the status.
		assert.Equal(t, "Task", m.LabelByDay[key(1)])
	}

	m := Merge(norm, Input{
		Enriched: map[string]model.TaskDetail{"t1": {Title: "Task", StartedOn: at(0), EndsOn: at(3)}},
		OOO:      []model.LogEntry{ooo},
	})
	assert.Equal(t, model.StatusOOO, m.StatusByDay[key(1)])
}

func TestOverlappingOOORequestsCoexist(t *testing.T) {
	m := Merge(norm, Input{OOO: []model.LogEntry{
		oooEntry("R1", at(0), at(2)),
		oooEntry("R2", at(2), at(4)),
	}})

	require.Len(t, m.DetailsByDay[key(2)], 2)
	assert.Equal(t, "R1", m.DetailsByDay[key(2)][0].RequestID)
	assert.Equal(t, "R2", m.DetailsByDay[key(2)][1].RequestID)
	assert.Len(t, m.DetailsByDay[key(0)], 1)
	assert.Len(t, m.DetailsByDay[key(4)], 1)
}

func TestAuthoritativeDetailSupersedesProvisional(t *testing.T) {
	m := Merge(norm, Input{
		RawLog: []model.LogEntry{taskEntry("t1", "Log title", at(0), at(1))},
		Enriched: map[string]model.TaskDetail{
			"t1": {
				Title:     "Detail title",
				StartedOn: at(1),
				EndsOn:    at(3),
				GitHub:    &model.GitHubRef{Issue: &model.IssueRef{HTMLURL: "https://gh/issue/1"}},
			},
		},
	})

	assert.Equal(t, model.CoverageAuthoritative, m.TaskCoverage)
	// Day 0 only had provisional coverage and keeps it.
	assert.Equal(t, "Log title", m.LabelByDay[key(0)])
	for i := 1; i <= 3; i++ {
		assert.Equal(t, model.StatusActive, m.StatusByDay[key(i)])
		assert.Equal(t, "Detail title", m.LabelByDay[key(i)])
		assert.Equal(t, "https://gh/issue/1", m.TaskByDay[key(i)].Link)
		assert.True(t, m.TaskByDay[key(i)].Authoritative)
	}
}

func TestHalfKnownDetailIsSkipped(t *testing.T) {
	m := Merge(norm, Input{
		RawLog: []model.LogEntry{taskEntry("t1", "Log title", at(0), model.Instant{})},
		Enriched: map[string]model.TaskDetail{
			"t1": {Title: "No end", StartedOn: at(0)},
		},
	})

	assert.Equal(t, model.CoverageProvisional, m.TaskCoverage)
	assert.Len(t, m.StatusByDay, 1)
	assert.Equal(t, "Log title", m.LabelByDay[key(0)])
}

func TestRawEntriesWithoutIDOrTitleAreIgnored(t *testing.T) {
	m := Merge(norm, Input{RawLog: []model.LogEntry{
		taskEntry("", "No id", at(0), model.Instant{}),
		taskEntry("t2", "", at(0), model.Instant{}),
		taskEntry("t3", "Bad date", model.Instant{}, model.Instant{}),
	}})
	assert.True(t, m.Empty())
	assert.Equal(t, model.CoverageNoData, m.TaskCoverage)
}

func TestEndsOnBeforeTimestampKeepsEntryDay(t *testing.T) {
	m := Merge(norm, Input{RawLog: []model.LogEntry{taskEntry("t1", "Backwards", at(2), at(0))}})
	assert.Len(t, m.StatusByDay, 1)
	assert.Equal(t, model.StatusActive, m.StatusByDay[key(2)])
}

func TestBaselineSeedsAndIsOverridden(t *testing.T) {
	m := Merge(norm, Input{
		Baseline: []model.BaselineEntry{
			{Status: "IDLE", StartTime: at(0), EndTime: at(4)},
			{Status: model.StatusActive, StartTime: at(5), EndTime: at(5), TaskTitle: "Demo task"},
			{Status: "IDLE", StartTime: model.Instant{}, EndTime: at(9)},
			{Status: "", StartTime: at(8)},
		},
		RawLog: []model.LogEntry{taskEntry("t1", "Real task", at(1), model.Instant{})},
		OOO:    []model.LogEntry{oooEntry("R1", at(3), at(3))},
	})

	assert.Equal(t, model.StatusIdle, m.StatusByDay[key(0)])
	assert.Equal(t, model.StatusActive, m.StatusByDay[key(1)])
	assert.Equal(t, "Real task", m.LabelByDay[key(1)])
	assert.Equal(t, model.StatusIdle, m.StatusByDay[key(2)])
	assert.Equal(t, model.StatusOOO, m.StatusByDay[key(3)])
	assert.Equal(t, model.StatusIdle, m.StatusByDay[key(4)])
	assert.Equal(t, model.StatusActive, m.StatusByDay[key(5)])
	assert.Equal(t, "Demo task", m.LabelByDay[key(5)])
	assert.Len(t, m.StatusByDay, 6)
}

func TestMergeIsIdempotent(t *testing.T) {
	in := Input{
		Baseline: []model.BaselineEntry{{Status: "IDLE", StartTime: at(-3), EndTime: at(-1)}},
		RawLog:   []model.LogEntry{taskEntry("t1", "A", at(0), at(2))},
		Enriched: map[string]model.TaskDetail{
			"t1": {Title: "A", StartedOn: at(0), EndsOn: at(5)},
			"t2": {Title: "B", StartedOn: at(4), EndsOn: at(6)},
		},
		OOO: []model.LogEntry{oooEntry("R1", at(5), at(7))},
	}
	assert.Equal(t, Merge(norm, in), Merge(norm, in))

	// Later-starting task wins the overlap deterministically.
	m := Merge(norm, in)
	assert.Equal(t, "B", m.LabelByDay[key(4)])
}

func TestPlanOrdersPatchesByLayer(t *testing.T) {
	patches, _ := Plan(norm, Input{
		OOO:      []model.LogEntry{oooEntry("R1", at(0), at(0))},
		RawLog:   []model.LogEntry{taskEntry("t1", "A", at(0), model.Instant{})},
		Baseline: []model.BaselineEntry{{Status: "IDLE", StartTime: at(0)}},
	})
	require.Len(t, patches, 3)
	assert.Equal(t, LayerBaseline, patches[0].Layer)
	assert.Equal(t, LayerRawLog, patches[1].Layer)
	assert.Equal(t, LayerOOO, patches[2].Layer)
}

func TestInvariantDetailsImplyOOO(t *testing.T) {
	m := Merge(norm, Input{
		RawLog:   []model.LogEntry{taskEntry("t1", "A", at(0), at(6))},
		OOO:      []model.LogEntry{oooEntry("R1", at(2), at(3)), oooEntry("R2", at(3), at(4))},
		Baseline: []model.BaselineEntry{{Status: "IDLE", StartTime: at(-2), EndTime: at(8)}},
	})
	for day, details := range m.DetailsByDay {
		assert.NotEmpty(t, details)
		assert.Equal(t, model.StatusOOO, m.StatusByDay[day])
	}
	for day := range m.LabelByDay {
		assert.Contains(t, m.StatusByDay, day)
	}
}
