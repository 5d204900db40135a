// Package metrics exposes query session counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "mdquery"

// Delivery kinds used as label values.
const (
	KindResult = "result"
	KindUpdate = "update"
)

// Metrics groups the collectors of every query created with it.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatched    *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	activeQueries prometheus.Gauge
	activeWatches prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Engine notifications forwarded to a callback.",
		}, []string{"kind"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_dropped_total",
			Help:      "Engine notifications dropped because the session was no longer listening.",
		}, []string{"kind"}),
		activeQueries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queries_active",
			Help:      "Query sessions currently running or finished but not stopped.",
		}),
		activeWatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "watches_active",
			Help:      "Watch subscriptions currently receiving updates.",
		}),
	}
}

func (m *Metrics) Dispatched(kind string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dropped(kind string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) QueryStarted() {
	if m == nil {
		return
	}
	m.activeQueries.Inc()
}

func (m *Metrics) QueryStopped() {
	if m == nil {
		return
	}
	m.activeQueries.Dec()
}

func (m *Metrics) WatchStarted() {
	if m == nil {
		return
	}
	m.activeWatches.Inc()
}

func (m *Metrics) WatchStopped() {
	if m == nil {
		return
	}
	m.activeWatches.Dec()
}
