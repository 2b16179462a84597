// Package enrich fetches task details referenced by log entries. Fetches
// run concurrently and independently: one failing never cancels or fails
// the others, and the batch only returns once every fetch has settled.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	appLog "statuscal/internal/log"
	"statuscal/internal/metrics"
	"statuscal/internal/model"
	"statuscal/internal/upstream"
)

// DetailSource is the entity detail service.
type DetailSource interface {
	FetchTask(ctx context.Context, id string) (model.TaskDetail, error)
}

// AssigneeSource lists tasks by assignee.
type AssigneeSource interface {
	FetchAssigned(ctx context.Context, assignee string) ([]model.TaskDetail, error)
}

// Options tunes a batch.
type Options struct {
	// Concurrency caps in-flight fetches. Zero issues every fetch at once.
	Concurrency int
	Metrics     *metrics.Collector
}

// Outcome is the settled result of one identifier.
type Outcome struct {
	ID     string
	Status string // metrics.OutcomeSuccess, OutcomeAbsent or OutcomeFailed
	Detail model.TaskDetail
	Err    error
}

// Batch is the settled result of FetchDetails.
type Batch struct {
	// Details holds successful fetches only. Failed or empty ids are absent.
	Details  map[string]model.TaskDetail
	Outcomes []Outcome
}

// Failed returns the number of identifiers whose fetch failed.
func (b Batch) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == metrics.OutcomeFailed {
			n++
		}
	}
	return n
}

// FetchDetails fetches each distinct non-empty id at most once.
func FetchDetails(ctx context.Context, src DetailSource, ids []string, opts Options) Batch {
	unique := dedupe(ids)
	batch := Batch{Details: make(map[string]model.TaskDetail, len(unique))}
	if len(unique) == 0 {
		return batch
	}

	// Every goroutine owns its own slot, so no locking is needed and the
	// outcome order follows the input order.
	outcomes := make([]Outcome, len(unique))

	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, id := range unique {
		g.Go(func() error {
			outcomes[i] = fetchOne(ctx, src, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		opts.Metrics.ObserveDetail(o.Status)
		switch o.Status {
		case metrics.OutcomeSuccess:
			batch.Details[o.ID] = o.Detail
		case metrics.OutcomeFailed:
			appLog.Error("task detail fetch failed", o.Err, "task_id", o.ID)
		default:
			appLog.Debug("task detail absent", "task_id", o.ID)
		}
	}
	batch.Outcomes = outcomes
	return batch
}

func fetchOne(ctx context.Context, src DetailSource, id string) (out Outcome) {
	out.ID = id
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{ID: id, Status: metrics.OutcomeFailed, Err: fmt.Errorf("enrich: fetch panicked: %v", r)}
		}
	}()

	detail, err := src.FetchTask(ctx, id)
	switch {
	case errors.Is(err, upstream.ErrNotFound):
		out.Status = metrics.OutcomeAbsent
	case err != nil:
		out.Status = metrics.OutcomeFailed
		out.Err = err
	case detail.Empty():
		out.Status = metrics.OutcomeAbsent
	default:
		if detail.ID == "" {
			detail.ID = id
		}
		out.Status = metrics.OutcomeSuccess
		out.Detail = detail
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FetchAssigned queries tasks assigned to the identity by id and by
// username concurrently and merges them by task id. Either lookup failing
// only loses its own tasks.
func FetchAssigned(ctx context.Context, src AssigneeSource, id model.Identity) map[string]model.TaskDetail {
	keys := dedupe([]string{id.ID, id.Username})
	results := make([][]model.TaskDetail, len(keys))

	var g errgroup.Group
	for i, assignee := range keys {
		g.Go(func() error {
			tasks, err := src.FetchAssigned(ctx, assignee)
			if err != nil {
				appLog.Error("assigned tasks fetch failed", err, "assignee", assignee)
				return nil
			}
			results[i] = tasks
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string]model.TaskDetail)
	for _, tasks := range results {
		for _, t := range tasks {
			if t.ID == "" {
				continue
			}
			merged[t.ID] = t
		}
	}
	return merged
}
