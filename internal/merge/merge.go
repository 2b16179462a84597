// Package merge builds a CalendarDayModel from heterogeneous sources.
//
// Every source is first turned into a list of day patches tagged with a
// layer. Patches are then applied in layer order, so precedence is data:
//
//	baseline < raw log (provisional) < task detail (authoritative) < out-of-office
//
// A later layer overwrites the status (and label, when it sets one) of an
// earlier layer on the same day. Out-of-office patches never touch labels.
package merge

import (
	"sort"

	"statuscal/internal/daykey"
	"statuscal/internal/model"
)

// Layer orders patches. Higher layers win.
type Layer int

const (
	LayerBaseline Layer = iota
	LayerRawLog
	LayerEnrichment
	LayerOOO
)

func (l Layer) String() string {
	switch l {
	case LayerBaseline:
		return "baseline"
	case LayerRawLog:
		return "raw_log"
	case LayerEnrichment:
		return "enrichment"
	case LayerOOO:
		return "ooo"
	default:
		return "unknown"
	}
}

// Patch is one write to one day.
type Patch struct {
	Day   daykey.Key
	Layer Layer

	// Status is written when non-empty.
	Status model.StatusClass

	// Label is written when SetLabel is true.
	Label    string
	SetLabel bool

	Task *model.TaskRef
	OOO  *model.OOODetail
}

// Input gathers everything one aggregation knows about an identity.
type Input struct {
	Identity model.Identity
	Baseline []model.BaselineEntry

	// RawLog holds matched log entries. Task events become provisional
	// days; out-of-office requests found here are treated like OOO entries.
	RawLog []model.LogEntry

	// Enriched maps task id to its fetched detail.
	Enriched map[string]model.TaskDetail

	OOO []model.LogEntry
}

// Coverage is the tagged result of one task-day source.
type Coverage struct {
	Kind    model.Coverage
	Patches []Patch
}

// Merge plans and applies all patches for in. It never fails; entries with
// unusable dates simply contribute nothing.
func Merge(n *daykey.Normalizer, in Input) *model.CalendarDayModel {
	patches, coverage := Plan(n, in)
	m := model.NewCalendarDayModel()
	m.TaskCoverage = coverage
	Apply(m, patches)
	return m
}

// Plan returns the patches for in, ordered by layer, and the resolved task
// coverage.
func Plan(n *daykey.Normalizer, in Input) ([]Patch, model.Coverage) {
	var patches []Patch
	patches = append(patches, baselinePatches(n, in.Baseline)...)

	taskEntries, strayOOO := splitRaw(in.RawLog)
	provisional := rawLogCoverage(n, taskEntries)
	authoritative := enrichmentCoverage(n, in.Enriched)

	tasks, kind := resolveTaskCoverage(provisional, authoritative)
	patches = append(patches, tasks...)

	ooo := make([]model.LogEntry, 0, len(in.OOO)+len(strayOOO))
	ooo = append(ooo, in.OOO...)
	ooo = append(ooo, strayOOO...)
	patches = append(patches, oooPatches(n, ooo)...)

	sort.SliceStable(patches, func(i, j int) bool {
		return patches[i].Layer < patches[j].Layer
	})
	return patches, kind
}

// resolveTaskCoverage picks the task days to apply. Authoritative detail is
// laid over the provisional days; when enrichment produced no day at all the
// provisional days stand alone.
func resolveTaskCoverage(provisional, authoritative Coverage) ([]Patch, model.Coverage) {
	switch {
	case authoritative.Kind == model.CoverageAuthoritative:
		out := make([]Patch, 0, len(provisional.Patches)+len(authoritative.Patches))
		out = append(out, provisional.Patches...)
		out = append(out, authoritative.Patches...)
		return out, model.CoverageAuthoritative
	case provisional.Kind == model.CoverageProvisional:
		return provisional.Patches, model.CoverageProvisional
	default:
		return nil, model.CoverageNoData
	}
}

// Apply writes patches into m in slice order.
func Apply(m *model.CalendarDayModel, patches []Patch) {
	for _, p := range patches {
		if p.Status != "" {
			m.StatusByDay[p.Day] = p.Status
		}
		if p.SetLabel {
			m.LabelByDay[p.Day] = p.Label
		}
		if p.Task != nil {
			m.TaskByDay[p.Day] = *p.Task
		}
		if p.OOO != nil {
			m.DetailsByDay[p.Day] = append(m.DetailsByDay[p.Day], *p.OOO)
		}
	}
}

func splitRaw(entries []model.LogEntry) (tasks, ooo []model.LogEntry) {
	for _, e := range entries {
		switch e.Kind() {
		case model.KindTask:
			tasks = append(tasks, e)
		case model.KindOOO:
			ooo = append(ooo, e)
		}
	}
	return tasks, ooo
}
