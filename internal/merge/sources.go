package merge

import (
	"sort"

	"statuscal/internal/daykey"
	"statuscal/internal/model"
)

// baselinePatches seeds days from caller-supplied spans. ACTIVE spans carry
// their title as label; any other status is written verbatim.
func baselinePatches(n *daykey.Normalizer, entries []model.BaselineEntry) []Patch {
	var out []Patch
	for _, e := range entries {
		if e.Status == "" || !e.StartTime.Valid() {
			continue
		}
		for _, day := range n.ExpandOpen(e.StartTime.Time, e.EndTime.Time) {
			// ACTIVE spans also set the status so a labelled day is never
			// without ACTIVE.
			p := Patch{Day: day, Layer: LayerBaseline, Status: e.Status}
			if e.Status == model.StatusActive && e.TaskTitle != "" {
				p.Label = e.TaskTitle
				p.SetLabel = true
			}
			out = append(out, p)
		}
	}
	return out
}

// rawLogCoverage derives provisional ACTIVE days from task events that carry
// both a task id and a title. The entry's own day is always covered; an
// endsOn extends the span through that day.
func rawLogCoverage(n *daykey.Normalizer, entries []model.LogEntry) Coverage {
	var out []Patch
	for _, e := range entries {
		if e.TaskID == "" || e.TaskTitle == "" || !e.Timestamp.Valid() {
			continue
		}
		days := n.Expand(e.Timestamp.Time, e.EndsOn.Time)
		if len(days) == 0 {
			days = []daykey.Key{n.Of(e.Timestamp.Time)}
		}
		ref := &model.TaskRef{
			TaskID:    e.TaskID,
			Title:     e.TaskTitle,
			StartedOn: e.Timestamp.Time,
			EndsOn:    e.EndsOn.Time,
		}
		for _, day := range days {
			out = append(out, Patch{
				Day:      day,
				Layer:    LayerRawLog,
				Status:   model.StatusActive,
				Label:    e.TaskTitle,
				SetLabel: true,
				Task:     ref,
			})
		}
	}
	if len(out) == 0 {
		return Coverage{Kind: model.CoverageNoData}
	}
	return Coverage{Kind: model.CoverageProvisional, Patches: out}
}

// enrichmentCoverage derives authoritative ACTIVE days from fetched task
// details. Details missing either bound contribute nothing. Overlapping
// tasks resolve in favour of the later start (then the larger id).
func enrichmentCoverage(n *daykey.Normalizer, details map[string]model.TaskDetail) Coverage {
	ids := make([]string, 0, len(details))
	for id, d := range details {
		if d.Bounded() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := details[ids[i]], details[ids[j]]
		if !a.StartedOn.Equal(b.StartedOn.Time) {
			return a.StartedOn.Before(b.StartedOn.Time)
		}
		return ids[i] < ids[j]
	})

	var out []Patch
	for _, id := range ids {
		d := details[id]
		ref := &model.TaskRef{
			TaskID:        id,
			Title:         d.Title,
			StartedOn:     d.StartedOn.Time,
			EndsOn:        d.EndsOn.Time,
			Link:          d.Link(),
			Authoritative: true,
		}
		for _, day := range n.Expand(d.StartedOn.Time, d.EndsOn.Time) {
			out = append(out, Patch{
				Day:      day,
				Layer:    LayerEnrichment,
				Status:   model.StatusActive,
				Label:    d.Title,
				SetLabel: true,
				Task:     ref,
			})
		}
	}
	if len(out) == 0 {
		return Coverage{Kind: model.CoverageNoData}
	}
	return Coverage{Kind: model.CoverageAuthoritative, Patches: out}
}

// oooPatches forces OOO on every day of every request and records the
// request on each of those days, in input order.
func oooPatches(n *daykey.Normalizer, entries []model.LogEntry) []Patch {
	var out []Patch
	for _, e := range entries {
		if e.Kind() != model.KindOOO {
			continue
		}
		detail := &model.OOODetail{
			RequestID: e.RequestID,
			From:      e.From.Time,
			Until:     e.Until.Time,
			Message:   e.Message,
		}
		for _, day := range n.Expand(e.From.Time, e.Until.Time) {
			out = append(out, Patch{
				Day:    day,
				Layer:  LayerOOO,
				Status: model.StatusOOO,
				OOO:    detail,
			})
		}
	}
	return out
}
