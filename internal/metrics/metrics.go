// Package metrics holds the Prometheus collectors for the ranking core.
//
// Collectors are registered on the Registerer passed to New rather than the
// global default registry, so every test can build its own registry and read
// values back without colliding with other tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "skillboard"

// Metrics groups the collectors used by the ledger and the leaderboard feed.
type Metrics struct {
	EventsApplied   *prometheus.CounterVec
	EventsRejected  *prometheus.CounterVec
	ScoreClamps     prometheus.Counter
	ApplyDuration   prometheus.Histogram
	Recomputes      *prometheus.CounterVec
	RecomputeErrors prometheus.Counter
	Subscribers     prometheus.Gauge
	UpdatesDropped  prometheus.Counter
	StaleServed     prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what most unit tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_applied_total",
			Help:      "Score events applied, by reason.",
		}, []string{"reason"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_rejected_total",
			Help:      "Score events that failed, by error kind.",
		}, []string{"kind"}),
		ScoreClamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "score_clamps_total",
			Help:      "Events whose delta would have made a score negative.",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying one score event, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}),
		Recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "recomputes_total",
			Help:      "Leaderboard recomputations triggered by score changes, by scope.",
		}, []string{"scope"}),
		RecomputeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "recompute_errors_total",
			Help:      "Leaderboard recomputations that failed.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Active leaderboard subscriptions.",
		}),
		UpdatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "updates_dropped_total",
			Help:      "Pending updates discarded because a subscriber fell behind.",
		}),
		StaleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stale_served_total",
			Help:      "Leaderboard reads answered from the last good ranking.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsApplied,
			m.EventsRejected,
			m.ScoreClamps,
			m.ApplyDuration,
			m.Recomputes,
			m.RecomputeErrors,
			m.Subscribers,
			m.UpdatesDropped,
			m.StaleServed,
		)
	}
	return m
}
