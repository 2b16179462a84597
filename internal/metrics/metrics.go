// Package metrics exposes Prometheus counters for the aggregation pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Detail fetch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeAbsent  = "absent"
	OutcomeFailed  = "failed"
)

// Aggregation results.
const (
	ResultFound   = "found"
	ResultNoLogs  = "no_logs"
	ResultOffline = "baseline_only"
	ResultError   = "error"
)

type Collector struct {
	hops          prometheus.Counter
	detailFetches *prometheus.CounterVec
	aggregations  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is handy for tests and embedded use. Collectors
// already registered by an earlier New on the same registry are reused.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		hops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statuscal",
			Name:      "pagination_hops_total",
			Help:      "Log service page requests issued by traversals.",
		}),
		detailFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statuscal",
			Name:      "detail_fetch_total",
			Help:      "Task detail fetches by outcome.",
		}, []string{"outcome"}),
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statuscal",
			Name:      "aggregations_total",
			Help:      "Completed aggregations by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return c, nil
	}

	var err error
	c.hops, err = register(reg, c.hops)
	if err != nil {
		return nil, err
	}
	c.detailFetches, err = register(reg, c.detailFetches)
	if err != nil {
		return nil, err
	}
	c.aggregations, err = register(reg, c.aggregations)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

func (c *Collector) ObserveHops(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.hops.Add(float64(n))
}

func (c *Collector) ObserveDetail(outcome string) {
	if c == nil {
		return
	}
	c.detailFetches.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveAggregation(result string) {
	if c == nil {
		return
	}
	c.aggregations.WithLabelValues(result).Inc()
}
