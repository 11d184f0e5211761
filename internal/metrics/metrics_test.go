package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveUpload("passport", "success")
	m.ObserveUpload("passport", "success")
	m.ObserveExtraction("main_page", false, 1.5)
	m.ObserveReconciliation(ReconcileCreated)
	m.ObservePasscode("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Uploads.WithLabelValues("passport", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Extractions.WithLabelValues("main_page", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues(ReconcileCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Passcodes.WithLabelValues("sent")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpload("photo", "success")
		m.ObserveExtraction("main_page", true, 0.1)
		m.ObserveReconciliation(ReconcileMerged)
		m.ObservePasscode("verified")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReconciliation(ReconcileMerged)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `visa_intake_reconciliations_total{result="merged"} 1`)
}
