// Package session tracks which identity the calendar is showing and keeps
// the latest aggregation for it. Responses that arrive for an identity that
// is no longer selected are dropped.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "statuscal/internal/log"
	"statuscal/internal/model"
)

// ErrSuperseded is returned by Submit when another identity was selected
// while the aggregation was running. The result was discarded.
var ErrSuperseded = errors.New("session: selection changed while aggregating")

// ErrRefreshRunning is returned by StartRefresh on a second call.
var ErrRefreshRunning = errors.New("session: refresh already running")

// Aggregator runs one aggregation.
type Aggregator interface {
	Aggregate(ctx context.Context, who model.Identity, baseline []model.BaselineEntry) (*model.Result, error)
}

// Snapshot is the committed state of a session.
type Snapshot struct {
	Identity  model.Identity
	Result    *model.Result
	Err       error
	UpdatedAt time.Time
}

// Session is safe for concurrent use.
type Session struct {
	agg      Aggregator
	schedule string
	loc      *time.Location
	now      func() time.Time

	mu       sync.RWMutex
	selected model.Identity
	baseline []model.BaselineEntry
	current  Snapshot
	cron     *cron.Cron
	stopped  chan struct{} // closed when cron is stopped
}

// Option configures a Session.
type Option func(*Session)

// WithSchedule sets the cron spec used by StartRefresh.
func WithSchedule(spec string) Option {
	return func(s *Session) { s.schedule = spec }
}

// WithLocation sets the zone the refresh schedule runs in.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the clock stamped on snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New returns an empty session.
func New(agg Aggregator, opts ...Option) *Session {
	s := &Session{
		agg:      agg,
		schedule: "*/15 * * * *",
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit selects who and aggregates. The result is committed only if who is
// still the selected identity when the aggregation returns; otherwise
// ErrSuperseded is returned and the current snapshot is left alone.
//
// A failed aggregation for the selected identity is committed too, so
// Current reports the failure instead of a stale calendar.
func (s *Session) Submit(ctx context.Context, who model.Identity, baseline []model.BaselineEntry) (Snapshot, error) {
	s.mu.Lock()
	s.selected = who
	s.baseline = baseline
	s.mu.Unlock()

	return s.run(ctx, who, baseline)
}

func (s *Session) run(ctx context.Context, who model.Identity, baseline []model.BaselineEntry) (Snapshot, error) {
	res, err := s.agg.Aggregate(ctx, who, baseline)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != who && !s.selected.Same(who) {
		appLog.Debug("session result discarded",
			"identity", who.String(),
			"selected", s.selected.String(),
		)
		return Snapshot{}, ErrSuperseded
	}
	s.current = Snapshot{
		Identity:  who,
		Result:    res,
		Err:       err,
		UpdatedAt: s.now(),
	}
	return s.current, err
}

// Current returns the last committed snapshot.
func (s *Session) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Selected returns the selected identity.
func (s *Session) Selected() model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Refresh re-runs the current selection. It is a no-op when nothing is
// selected.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	who, baseline := s.selected, s.baseline
	s.mu.RUnlock()

	if who.IsZero() {
		return nil
	}
	_, err := s.run(ctx, who, baseline)
	return err
}

// StartRefresh re-runs the selection on the configured schedule until ctx
// is done or Stop is called. Overlapping runs are skipped.
func (s *Session) StartRefresh(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return ErrRefreshRunning
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			appLog.Error("session refresh failed", err, "identity", s.Selected().String())
		}
	}); err != nil {
		s.mu.Unlock()
		return err
	}
	stopped := make(chan struct{})
	s.cron = c
	s.stopped = stopped
	s.mu.Unlock()

	c.Start()
	appLog.Info("session refresh started", "schedule", s.schedule, "timezone", s.loc.String())

	go func() {
		select {
		case <-ctx.Done():
			s.stop(c)
		case <-stopped:
		}
	}()
	return nil
}

// Stop halts scheduled refreshes and waits for a running one to finish.
func (s *Session) Stop() {
	s.mu.RLock()
	c := s.cron
	s.mu.RUnlock()
	s.stop(c)
}

// stop halts c if it is still the active scheduler.
func (s *Session) stop(c *cron.Cron) {
	s.mu.Lock()
	if c == nil || s.cron != c {
		s.mu.Unlock()
		return
	}
	close(s.stopped)
	s.cron = nil
	s.stopped = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	appLog.Info("session refresh stopped")
}

// cronLogger routes scheduler logs through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
