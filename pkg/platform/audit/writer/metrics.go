package writer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit writer.
type Metrics struct {
	Written               *prometheus.CounterVec
	Rejected              *prometheus.CounterVec
	PersistFailures       prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
	RecoveryDepth         prometheus.Gauge
	RecoveryDropped       prometheus.Counter
	Replayed              prometheus.Counter
	SinkFailures          prometheus.Counter
}

// NewMetrics registers the writer metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Written: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_audit_writer_written_total",
			Help: "Total number of audit events persisted",
		}, []string{"action_type"}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_audit_writer_rejected_total",
			Help: "Total number of audit events rejected by validation",
		}, []string{"reason"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_audit_writer_persist_failures_total",
			Help: "Total number of audit events the store failed to persist",
		}),
		CircuitBreakerDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_audit_writer_circuit_breaker_dropped_total",
			Help: "Total number of inserts skipped while the circuit breaker was open",
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custody_audit_writer_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		RecoveryDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custody_audit_writer_recovery_buffer_depth",
			Help: "Number of failed audit events waiting for replay",
		}),
		RecoveryDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_audit_writer_recovery_dropped_total",
			Help: "Total number of failed audit events evicted from a full recovery buffer",
		}),
		Replayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_audit_writer_replayed_total",
			Help: "Total number of audit events persisted by the retry worker",
		}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "custody_audit_writer_sink_failures_total",
			Help: "Total number of failed mirror publishes",
		}),
	}
}

// A nil *Metrics is valid and records nothing.

func (m *Metrics) IncWritten(actionType string) {
	if m == nil {
		return
	}
	m.Written.WithLabelValues(actionType).Inc()
}

func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) IncCircuitBreakerDropped() {
	if m == nil {
		return
	}
	m.CircuitBreakerDropped.Inc()
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

func (m *Metrics) SetRecoveryDepth(n int) {
	if m == nil {
		return
	}
	m.RecoveryDepth.Set(float64(n))
}

func (m *Metrics) IncRecoveryDropped() {
	if m == nil {
		return
	}
	m.RecoveryDropped.Inc()
}

func (m *Metrics) AddReplayed(n int) {
	if m == nil {
		return
	}
	m.Replayed.Add(float64(n))
}

func (m *Metrics) IncSinkFailures() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}
