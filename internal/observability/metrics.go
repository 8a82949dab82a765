package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus registry and the meters shared by the
// registry, transport and archive layers.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec

	// LedgerObjects tracks record counts by kind (courses, certificates,
	// validated_certificates, active_grants, role_assignments).
	LedgerObjects *prometheus.GaugeVec
	// EventsPublished counts notifications by event type.
	EventsPublished *prometheus.CounterVec
	// EventSequence is the last committed notification sequence.
	EventSequence prometheus.Gauge
	// Subscriptions is the number of live event subscriptions.
	Subscriptions prometheus.Gauge
	// ArchiveBytes counts snapshot bytes written per sink.
	ArchiveBytes *prometheus.CounterVec
	// Verifications counts verify queries by outcome.
	Verifications *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with the skilltoken meters.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skilltoken_operation_duration_seconds",
			Help:    "Duration of operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		OperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltoken_operation_total",
			Help: "Total number of operations.",
		}, []string{"operation", "status"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltoken_errors_total",
			Help: "Total number of errors by operation and error code.",
		}, []string{"operation", "code"}),
		LedgerObjects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skilltoken_ledger_objects",
			Help: "Number of ledger records by kind.",
		}, []string{"kind"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltoken_events_published_total",
			Help: "Total notifications published by type.",
		}, []string{"type"}),
		EventSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skilltoken_event_sequence",
			Help: "Sequence number of the last committed notification.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skilltoken_subscriptions_active",
			Help: "Number of live event subscriptions.",
		}),
		ArchiveBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltoken_archive_bytes_total",
			Help: "Snapshot bytes written to archive sinks.",
		}, []string{"sink"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skilltoken_verifications_total",
			Help: "Verify queries by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.OperationDuration, m.OperationTotal, m.ErrorsTotal,
		m.LedgerObjects, m.EventsPublished, m.EventSequence,
		m.Subscriptions, m.ArchiveBytes, m.Verifications,
	)
	return m
}
