// Package pagination walks the paged log service looking for the first page
// that contains entries of a given identity.
//
// The walk is satisfiability-first rather than exhaustive: it stops on the
// first page whose own entries match, when the service stops handing out a
// continuation cursor, or after MaxHops requests.
package pagination

import (
	"context"
	"fmt"

	appLog "statuscal/internal/log"
	"statuscal/internal/model"
	"statuscal/internal/upstream"
)

const DefaultMaxHops = 5

// PageSource is the log query service as seen by the traversal.
type PageSource interface {
	FetchPage(ctx context.Context, req upstream.PageRequest) (upstream.Page, error)
}

// Query describes one traversal.
type Query struct {
	Identity model.Identity
	Types    []string
	PageSize int
	MaxHops  int
}

// Traversal is the result of a completed walk.
type Traversal struct {
	// Matched holds the identity's entries from the first matching page,
	// in page order. Empty means no logs were found.
	Matched []model.LogEntry

	// History holds every entry fetched across all hops.
	History []model.LogEntry

	// Hops is the number of page requests issued.
	Hops int

	// Exhausted is true when the walk stopped on the hop ceiling while the
	// service still offered another page.
	Exhausted bool
}

// Found reports whether a matching page was reached.
func (t Traversal) Found() bool {
	return len(t.Matched) > 0
}

// Traverse fetches pages sequentially until a page yields entries for
// q.Identity. A failed hop aborts the walk with no partial result; only Hops
// is set, counting the failed request.
func Traverse(ctx context.Context, src PageSource, q Query) (Traversal, error) {
	maxHops := q.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	var (
		out    Traversal
		cursor string
	)
	for out.Hops < maxHops {
		req := upstream.PageRequest{
			Identity: q.Identity,
			Types:    q.Types,
			Size:     q.PageSize,
			Next:     cursor,
		}
		out.Hops++

		page, err := src.FetchPage(ctx, req)
		if err != nil {
			return Traversal{Hops: out.Hops}, fmt.Errorf("pagination: hop %d for %s: %w", out.Hops, q.Identity, err)
		}
		out.History = append(out.History, page.Entries...)

		matched := filterIdentity(page.Entries, q.Identity)
		appLog.Debug("pagination hop",
			"identity", q.Identity.String(),
			"hop", out.Hops,
			"entries", len(page.Entries),
			"matched", len(matched),
			"has_next", page.Next != "",
		)
		if len(matched) > 0 {
			out.Matched = matched
			return out, nil
		}
		if page.Next == "" {
			return out, nil
		}
		cursor = page.Next
	}

	out.Exhausted = true
	appLog.Info("pagination hop ceiling reached without a match",
		"identity", q.Identity.String(),
		"hops", out.Hops,
		"history", len(out.History),
	)
	return out, nil
}

func filterIdentity(entries []model.LogEntry, id model.Identity) []model.LogEntry {
	var out []model.LogEntry
	for _, e := range entries {
		if e.BelongsTo(id) {
			out = append(out, e)
		}
	}
	return out
}

// Split separates matched entries into task events and out-of-office
// requests. Generic entries are dropped.
func Split(entries []model.LogEntry) (tasks, ooo []model.LogEntry) {
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

// TaskIDs returns the distinct task ids referenced by entries, in first-seen
// order.
func TaskIDs(entries []model.LogEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	var ids []string
	for _, e := range entries {
		if e.TaskID == "" {
			continue
		}
		if _, ok := seen[e.TaskID]; ok {
			continue
		}
		seen[e.TaskID] = struct{}{}
		ids = append(ids, e.TaskID)
	}
	return ids
}
