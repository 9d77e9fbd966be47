package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/stores"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

func newTestServer(t *testing.T) (*Server, *stores.SQLiteStore) {
	t.Helper()

	ledger, err := stores.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "cloudcycle"})
	require.NoError(t, err)

	return NewServer(":0", ledger, metrics, nil), ledger
}

func seedRun(t *testing.T, ledger *stores.SQLiteStore, id string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	code := 0

	require.NoError(t, ledger.SaveRun(ctx, &engine.RunRecord{
		ID:          id,
		State:       engine.RunStateVerifiedTornDown,
		Provider:    "memory",
		Region:      "us-east-1",
		StartedAt:   now.Add(-time.Minute),
		CompletedAt: &now,
		ExitCode:    &code,
	}))
	require.NoError(t, ledger.SaveDescriptor(ctx, id, engine.Descriptor{
		Kind:      engine.KindQueue,
		ID:        "q-1",
		Handle:    engine.Handle{Kind: engine.KindQueue, ID: "q-1"},
		State:     engine.StateTerminated,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, ledger.SaveResult(ctx, id, 1, engine.OperationResult{
		Step:    "terminate",
		Success: true,
		At:      now,
	}))
	require.NoError(t, ledger.AppendEvent(ctx, &stores.EventRecord{
		ID:        id + "-evt",
		RunID:     id,
		Type:      "run.completed",
		Level:     "info",
		Message:   "run finished",
		Timestamp: now,
	}))
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s, ledger := newTestServer(t)

	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/readyz").Code)

	require.NoError(t, ledger.Close())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
}

func TestListRuns(t *testing.T) {
	s, ledger := newTestServer(t)

	rec := get(t, s, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	seedRun(t, ledger, "run-a")
	seedRun(t, ledger, "run-b")

	rec = get(t, s, "/v1/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []engine.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestGetRun(t *testing.T) {
	s, ledger := newTestServer(t)
	seedRun(t, ledger, "run-a")

	rec := get(t, s, "/v1/runs/run-a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var detail RunDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, engine.RunStateVerifiedTornDown, detail.Run.State)
	require.Len(t, detail.Resources, 1)
	assert.Equal(t, engine.StateTerminated, detail.Resources[0].State)
	require.Len(t, detail.Results, 1)
	assert.Equal(t, "terminate", detail.Results[0].Step)
	require.Len(t, detail.Events, 1)

	rec = get(t, s, "/v1/runs/run-a/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run.completed")
}

func TestGetRunNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"run not found"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	s.metrics.RecordRunStarted("memory")

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cloudcycle_")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	s.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
