// Package statuscal aggregates a user's activity logs, task records and
// out-of-office requests into a per-day status calendar.
//
// An Engine walks the paginated log service until it finds the user's
// entries, fetches detail for every referenced task, and merges everything
// into a CalendarDayModel keyed by local-midnight day keys:
//
//	eng, err := statuscal.New(cfg)
//	res, err := eng.Aggregate(ctx, statuscal.Identity{Username: "alice"}, nil)
//	cal := eng.Calendar(res)
//	class, _ := cal.TileClass(day)
package statuscal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"statuscal/internal/config"
	"statuscal/internal/daykey"
	"statuscal/internal/enrich"
	"statuscal/internal/ics"
	appLog "statuscal/internal/log"
	"statuscal/internal/merge"
	"statuscal/internal/metrics"
	"statuscal/internal/model"
	"statuscal/internal/pagination"
	"statuscal/internal/query"
	"statuscal/internal/session"
	"statuscal/internal/upstream"
)

type (
	Config           = config.Config
	Identity         = model.Identity
	BaselineEntry    = model.BaselineEntry
	CalendarDayModel = model.CalendarDayModel
	Result           = model.Result
	DayKey           = daykey.Key
)

// ErrNoIdentity is returned when Aggregate is called without an identity.
var ErrNoIdentity = errors.New("statuscal: identity is required")

// ErrTransport is matched by every upstream failure.
var ErrTransport = upstream.ErrTransport

const userAgent = "statuscal/0.1"

// BaselineSource loads baseline entries when the caller supplies none.
type BaselineSource interface {
	Fetch(ctx context.Context, url string) (ics.FetchResult, error)
}

// Engine runs aggregations. It is safe for concurrent use; every call
// keeps its own traversal state.
type Engine struct {
	cfg  *config.Config
	norm *daykey.Normalizer

	pages    pagination.PageSource
	details  enrich.DetailSource
	assigned enrich.AssigneeSource
	baseline BaselineSource

	httpClient *http.Client
	registerer prometheus.Registerer
	now        func() time.Time
	metrics    *metrics.Collector
}

// Option customizes an Engine.
type Option func(*Engine)

// WithHTTPClient sets the client used for the upstream services.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// WithPageSource replaces the log query service.
func WithPageSource(src pagination.PageSource) Option {
	return func(e *Engine) { e.pages = src }
}

// WithDetailSource replaces the task detail service.
func WithDetailSource(src enrich.DetailSource) Option {
	return func(e *Engine) { e.details = src }
}

// WithAssigneeSource replaces the tasks-by-assignee lookup.
func WithAssigneeSource(src enrich.AssigneeSource) Option {
	return func(e *Engine) { e.assigned = src }
}

// WithBaselineSource replaces the iCalendar baseline fetcher.
func WithBaselineSource(src BaselineSource) Option {
	return func(e *Engine) { e.baseline = src }
}

// WithRegisterer registers the engine's counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

// WithClock overrides the clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine from cfg. A nil cfg means DefaultConfig. The
// process-wide log level is set from cfg.LogLevel.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Normalize()
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	m, err := metrics.New(e.registerer)
	if err != nil {
		return nil, fmt.Errorf("statuscal: metrics: %w", err)
	}
	e.metrics = m

	e.norm = daykey.New(cfg.Location(),
		daykey.WithClock(e.now),
		daykey.WithMaxSpanDays(cfg.MaxSpanDays),
	)

	if e.httpClient == nil {
		e.httpClient = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	if e.pages == nil || e.details == nil || e.assigned == nil {
		client := upstream.NewClient(upstream.Options{
			BaseURL:    cfg.BaseURL,
			HTTPClient: e.httpClient,
			UserAgent:  userAgent,
			Dev:        true,
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay(),
			MaxDelay:   cfg.Retry.MaxDelay(),
		})
		if e.pages == nil {
			e.pages = client
		}
		if e.details == nil {
			e.details = client
		}
		if e.assigned == nil {
			e.assigned = client
		}
	}
	if e.baseline == nil && cfg.BaselineURL != "" {
		e.baseline = ics.NewFetcher(e.httpClient)
	}

	appLog.Info("statuscal engine ready",
		"base_url", cfg.BaseURL,
		"timezone", e.norm.Location().String(),
		"live", cfg.Live,
		"page_size", cfg.PageSize,
		"max_hops", cfg.MaxHops,
		"enrich_concurrency", cfg.EnrichConcurrency,
		"include_assigned_tasks", cfg.IncludeAssignedTasks,
		"baseline_feed", cfg.BaselineURL != "",
	)
	return e, nil
}

// Config returns the normalized configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Normalizer returns the day-key normalizer bound to the configured zone.
func (e *Engine) Normalizer() *daykey.Normalizer { return e.norm }

// Aggregate builds the calendar model for who.
//
// When Live is off only the baseline is merged. Otherwise the log service is
// walked until a page holds entries for who, task ids found there are
// enriched, and the lot is merged. A failed hop fails the whole call with an
// error matching ErrTransport; failed task details are only logged.
func (e *Engine) Aggregate(ctx context.Context, who Identity, baseline []BaselineEntry) (*Result, error) {
	if who.IsZero() {
		e.metrics.ObserveAggregation(metrics.ResultError)
		return nil, ErrNoIdentity
	}
	ctx, reqID := upstream.WithRequestID(ctx, upstream.RequestIDFrom(ctx))

	if baseline == nil {
		baseline = e.loadBaseline(ctx)
	}

	res := &Result{Identity: who, RequestID: reqID}
	in := merge.Input{Identity: who, Baseline: baseline}

	if !e.cfg.Live {
		res.Model = merge.Merge(e.norm, in)
		e.metrics.ObserveAggregation(metrics.ResultOffline)
		appLog.Info("aggregation finished offline",
			"identity", who.String(),
			"request_id", reqID,
			"days", len(res.Model.StatusByDay),
		)
		return res, nil
	}

	trav, err := pagination.Traverse(ctx, e.pages, pagination.Query{
		Identity: who,
		Types:    e.cfg.EntryTypes,
		PageSize: e.cfg.PageSize,
		MaxHops:  e.cfg.MaxHops,
	})
	e.metrics.ObserveHops(trav.Hops)
	if err != nil {
		e.metrics.ObserveAggregation(metrics.ResultError)
		appLog.Error("aggregation failed", err, "identity", who.String(), "request_id", reqID)
		return nil, fmt.Errorf("statuscal: aggregate %s: %w", who, err)
	}
	res.Hops = trav.Hops
	res.Found = trav.Found()
	res.Exhausted = trav.Exhausted

	tasks, ooo := pagination.Split(trav.Matched)
	batch := enrich.FetchDetails(ctx, e.details, pagination.TaskIDs(tasks), enrich.Options{
		Concurrency: e.cfg.EnrichConcurrency,
		Metrics:     e.metrics,
	})
	res.FailedDetails = batch.Failed()

	enriched := batch.Details
	if e.cfg.IncludeAssignedTasks {
		for id, detail := range enrich.FetchAssigned(ctx, e.assigned, who) {
			if _, ok := enriched[id]; !ok {
				enriched[id] = detail
			}
		}
	}

	in.RawLog = tasks
	in.Enriched = enriched
	in.OOO = ooo
	res.Model = merge.Merge(e.norm, in)

	result := metrics.ResultFound
	if !res.Found {
		result = metrics.ResultNoLogs
	}
	e.metrics.ObserveAggregation(result)

	appLog.Info("aggregation finished",
		"identity", who.String(),
		"request_id", reqID,
		"hops", res.Hops,
		"found", res.Found,
		"tasks", len(tasks),
		"ooo", len(ooo),
		"enriched", len(enriched),
		"failed_details", res.FailedDetails,
		"coverage", res.Model.TaskCoverage.String(),
		"days", len(res.Model.StatusByDay),
	)
	return res, nil
}

// loadBaseline reads the configured iCalendar feed. Any failure leaves the
// baseline empty.
func (e *Engine) loadBaseline(ctx context.Context) []BaselineEntry {
	if e.baseline == nil || e.cfg.BaselineURL == "" {
		return nil
	}
	fetched, err := e.baseline.Fetch(ctx, e.cfg.BaselineURL)
	if err != nil {
		appLog.Warn("baseline feed unavailable", "error", err.Error())
		return nil
	}

	today := e.norm.Midnight(time.Time{})
	span := e.cfg.MaxSpanDays / 2
	entries, err := ics.ParseBaseline(fetched.Body,
		ics.WithLocation(e.norm.Location()),
		ics.WithWindow(today.AddDate(0, 0, -span), today.AddDate(0, 0, span)),
	)
	if err != nil {
		appLog.Warn("baseline feed unreadable", "error", err.Error())
		return nil
	}
	return entries
}

// Calendar returns the query view over a result's model.
func (e *Engine) Calendar(res *Result) *query.Calendar {
	var m *model.CalendarDayModel
	if res != nil {
		m = res.Model
	}
	return query.New(m, e.norm, e.cfg.TaskLinkBase)
}

// Notice returns the user-facing message for an aggregation outcome, or ""
// when the calendar speaks for itself.
func (e *Engine) Notice(res *Result, err error) string {
	if err != nil {
		return query.FailureMessage(err)
	}
	if res != nil && e.cfg.Live && !res.Found {
		return query.NoLogsMessage(res.Identity)
	}
	return ""
}

// ExportICS renders a result as an iCalendar feed.
func (e *Engine) ExportICS(res *Result) string {
	if res == nil {
		return ics.Export(nil, Identity{}, e.norm.Location())
	}
	return ics.Export(res.Model, res.Identity, e.norm.Location())
}

// NewSession returns a selection session driven by this engine.
func (e *Engine) NewSession() *session.Session {
	return session.New(e, session.WithSchedule(e.cfg.RefreshCron), session.WithLocation(e.norm.Location()))
}
