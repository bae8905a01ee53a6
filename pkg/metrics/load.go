package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LoadMetrics tracks comparison load cycles.
type LoadMetrics struct {
	duration  *prometheus.HistogramVec
	failures  *prometheus.CounterVec
	stale     prometheus.Counter
	fallbacks *prometheus.CounterVec
}

// NewLoadMetrics registers the load metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewLoadMetrics(reg prometheus.Registerer) *LoadMetrics {
	if reg == nil {
		return &LoadMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "compare",
		Name:      "load_duration_seconds",
		Help:      "Duration of comparison load cycles in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"view", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compare",
		Name:      "fetch_failures_total",
		Help:      "Failed price backend fetches by error code.",
	}, []string{"code"})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compare",
		Name:      "stale_loads_total",
		Help:      "Loads discarded because a newer load was issued.",
	})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compare",
		Name:      "fallbacks_total",
		Help:      "Loads served from cached rows after a failed fetch.",
	}, []string{"source"})
	reg.MustRegister(duration, failures, stale, fallbacks)
	return &LoadMetrics{
		duration:  duration,
		failures:  failures,
		stale:     stale,
		fallbacks: fallbacks,
	}
}

// ObserveLoad records one load cycle.
func (m *LoadMetrics) ObserveLoad(view, outcome string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(view), normalizeLabel(outcome)).Observe(duration.Seconds())
}

func (m *LoadMetrics) IncFetchFailure(code string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *LoadMetrics) IncStaleLoad() {
	if m == nil || m.stale == nil {
		return
	}
	m.stale.Inc()
}

func (m *LoadMetrics) IncFallback(source string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(normalizeLabel(source)).Inc()
}
