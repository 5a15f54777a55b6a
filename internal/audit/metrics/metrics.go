package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit reporting service.
type Metrics struct {
	// Store round-trip latency by operation
	OperationLatency *prometheus.HistogramVec

	// Failed operations by operation
	OperationErrors *prometheus.CounterVec

	// Summary cache hits and misses
	SummaryCache *prometheus.CounterVec
}

// New registers the reporting metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custody_audit_query_duration_seconds",
			Help:    "Duration of audit reporting operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}), // operation: "query", "summarize"

		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_audit_query_errors_total",
			Help: "Total failed audit reporting operations",
		}, []string{"operation"}),

		SummaryCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_audit_summary_cache_total",
			Help: "Summary cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss"
	}
}

// ObserveOperation records the duration and outcome of one operation.
func (m *Metrics) ObserveOperation(operation string, d time.Duration, err error) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
		if err != nil {
			m.OperationErrors.WithLabelValues(operation).Inc()
		}
	}
}

func (m *Metrics) IncSummaryCache(hit bool) {
	if m != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		m.SummaryCache.WithLabelValues(result).Inc()
	}
}
