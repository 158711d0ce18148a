package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveDecision("admitted")
	m.ObserveDecision("admitted")
	m.ObserveDecision("queued")
	m.ObservePromotion()
	m.ObserveExpired(3)
	m.ObserveNotificationFailure("invitation")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promotions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures.WithLabelValues("invitation")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDecision("admitted")
		m.ObserveRelease("released")
		m.ObservePromotion()
		m.ObserveExpired(1)
		m.ObserveRetry()
		m.ObserveUnavailable()
		m.ObserveNotificationFailure("x")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDecision("queued")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `admission_decisions_total{outcome="queued"} 1`)
}
