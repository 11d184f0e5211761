package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
	UploadFailed   = "failed"
)

// Reconciliation results
const (
	ReconcileCreated   = "created"
	ReconcileMerged    = "merged"
	ReconcileRetried   = "conflict_retried"
	ReconcileDuplicate = "duplicate_draft"
	ReconcileRejected  = "rejected"
	ReconcileFailed    = "failed"
)

// Metrics holds all Prometheus metrics for the intake pipeline. Each instance
// owns its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Uploads            *prometheus.CounterVec
	Extractions        *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
	Reconciliations    *prometheus.CounterVec
	Passcodes          *prometheus.CounterVec
}

// New creates and registers all metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visa_intake_uploads_total",
			Help: "Document uploads by slot and outcome",
		}, []string{"slot", "outcome"}),
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visa_intake_extractions_total",
			Help: "Passport field extractions by page role and outcome",
		}, []string{"role", "outcome"}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "visa_intake_extraction_duration_seconds",
			Help:    "Time spent waiting on the extraction service",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 45},
		}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visa_intake_reconciliations_total",
			Help: "Draft reconciliations by result",
		}, []string{"result"}),
		Passcodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visa_intake_passcodes_total",
			Help: "Passcode events (sent, verified, rejected, rate_limited)",
		}, []string{"event"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpload counts one upload
func (m *Metrics) ObserveUpload(slot, outcome string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(slot, outcome).Inc()
}

// ObserveExtraction counts one extraction and records how long it took
func (m *Metrics) ObserveExtraction(role string, succeeded bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "succeeded"
	if !succeeded {
		outcome = "failed"
	}
	m.Extractions.WithLabelValues(role, outcome).Inc()
	m.ExtractionDuration.Observe(seconds)
}

// ObserveReconciliation counts one reconciliation result
func (m *Metrics) ObserveReconciliation(result string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(result).Inc()
}

// ObservePasscode counts one passcode event
func (m *Metrics) ObservePasscode(event string) {
	if m == nil {
		return
	}
	m.Passcodes.WithLabelValues(event).Inc()
}
