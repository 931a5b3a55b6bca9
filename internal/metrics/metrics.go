// Package metrics exposes prometheus instrumentation for the audit log API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest outcome labels.
const (
	IngestCreated  = "created"
	IngestReplayed = "replayed"
	IngestConflict = "conflict"
	IngestRejected = "rejected"
	IngestFailed   = "failed"
)

type Metrics struct {
	ingestTotal *prometheus.CounterVec
	verifyTotal *prometheus.CounterVec
	listTotal   prometheus.Counter
}

// New registers the service counters on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a private registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ingestTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auditlog",
				Subsystem: "ingest",
				Name:      "requests_total",
				Help:      "Ingestion attempts partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		verifyTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auditlog",
				Subsystem: "verify",
				Name:      "checks_total",
				Help:      "Verification checks partitioned by result.",
			},
			[]string{"result"},
		),
		listTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "auditlog",
				Subsystem: "list",
				Name:      "queries_total",
				Help:      "Total list queries served.",
			},
		),
	}
}

func (m *Metrics) ObserveIngest(outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerify(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.verifyTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveList() {
	if m == nil {
		return
	}
	m.listTotal.Inc()
}
