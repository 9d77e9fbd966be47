package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	cfg := DefaultConfig().Metrics
	m, err := NewMetrics(cfg)
	require.NoError(t, err)
	return m
}

func TestMetricsRunLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRunStarted("memory")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRuns))

	m.RecordRunCompleted("verified_torn_down", 2*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsCompleted.WithLabelValues("verified_torn_down")))
}

func TestMetricsResourceTransitions(t *testing.T) {
	m := newTestMetrics(t)

	m.TrackResourceTransition("queue", "", "requested")
	m.TrackResourceTransition("queue", "requested", "provisioning")
	m.TrackResourceTransition("queue", "provisioning", "ready")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.resourcesByState.WithLabelValues("queue", "requested")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.resourcesByState.WithLabelValues("queue", "provisioning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resourcesByState.WithLabelValues("queue", "ready")))
}

func TestMetricsCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordAdapterCall("terminate")
	m.RecordAdapterCall("terminate")
	m.RecordAdapterError("terminate")
	m.RecordVerificationPoll("compute", "ready")
	m.RecordOperation("terminate", "compute", false, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.adapterCalls.WithLabelValues("terminate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adapterErrors.WithLabelValues("terminate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verificationPolls.WithLabelValues("compute", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("terminate", "compute", "false")))
}

func TestMetricsDisabledAndNil(t *testing.T) {
	disabled, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	var nilMetrics *Metrics
	for _, m := range []*Metrics{disabled, nilMetrics} {
		assert.NotPanics(t, func() {
			m.RecordRunStarted("aws")
			m.RecordRunCompleted("aborted", time.Second)
			m.RecordOperation("provision_queue", "queue", true, time.Second)
			m.RecordAdapterCall("provision")
			m.RecordAdapterError("provision")
			m.RecordVerificationPoll("queue", "ready")
			m.TrackResourceTransition("queue", "", "requested")
		})
		assert.Nil(t, m.Registry())
		assert.Nil(t, m.StartMetricsServer(NewNopLogger()))
	}
}

func TestMetricsHandler(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRunStarted("memory")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cloudcycle_runs_started_total"))
}
