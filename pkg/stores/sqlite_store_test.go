package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func saveTestRun(t *testing.T, store *SQLiteStore, id string, started time.Time) {
	t.Helper()
	err := store.SaveRun(context.Background(), &engine.RunRecord{
		ID:        id,
		State:     engine.RunStateInit,
		Provider:  "memory",
		Region:    "us-east-1",
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check passed before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "resources", "operation_results", "events"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestFileStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	saveTestRun(t, store, "run-file", time.Now())
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	if _, err := store.GetRun(ctx, "run-file"); err != nil {
		t.Errorf("GetRun() after reopen error = %v", err)
	}
}

func TestRunUpsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	saveTestRun(t, store, "run-001", started)

	completed := time.Now()
	code := 0
	err := store.SaveRun(ctx, &engine.RunRecord{
		ID:          "run-001",
		State:       engine.RunStateVerifiedTornDown,
		Provider:    "memory",
		Region:      "us-east-1",
		StartedAt:   started,
		CompletedAt: &completed,
		ExitCode:    &code,
		TraceID:     "4bf92f3577b34da6a3ce929d0e0e4736",
	})
	if err != nil {
		t.Fatalf("SaveRun() update error = %v", err)
	}

	run, err := store.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.State != engine.RunStateVerifiedTornDown {
		t.Errorf("state = %s", run.State)
	}
	if run.CompletedAt == nil || run.CompletedAt.Sub(completed).Abs() > time.Millisecond {
		t.Errorf("completed_at = %v, want %v", run.CompletedAt, completed)
	}
	if run.ExitCode == nil || *run.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", run.ExitCode)
	}
	if run.Provider != "memory" || run.Region != "us-east-1" {
		t.Errorf("run = %+v", run)
	}
	if run.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %q", run.TraceID)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	base := time.Now().Add(-time.Hour)

	saveTestRun(t, store, "run-a", base)
	saveTestRun(t, store, "run-b", base.Add(time.Minute))
	saveTestRun(t, store, "run-c", base.Add(2*time.Minute))

	runs, err := store.ListRuns(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("ListRuns() = %v", runIDs(runs))
	}

	runs, err = store.ListRuns(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("ListRuns() page 2 error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" {
		t.Fatalf("ListRuns() page 2 = %v", runIDs(runs))
	}
}

func runIDs(runs []*engine.RunRecord) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestDescriptorSnapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	saveTestRun(t, store, "run-1", time.Now())

	created := time.Now().Add(-time.Second)
	d := engine.Descriptor{
		Kind:      engine.KindQueue,
		ID:        "memory://queues/jobs",
		Handle:    engine.Handle{Kind: engine.KindQueue, ID: "memory://queues/jobs", Attributes: map[string]string{"name": "jobs"}},
		State:     engine.StateRequested,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, state := range []engine.State{engine.StateRequested, engine.StateReady, engine.StateFailed} {
		d.State = state
		d.UpdatedAt = time.Now()
		if err := store.SaveDescriptor(ctx, "run-1", d); err != nil {
			t.Fatalf("SaveDescriptor(%s) error = %v", state, err)
		}
	}
	if err := store.SaveDescriptor(ctx, "run-1", engine.Descriptor{Kind: engine.KindCompute, ID: "i-1", State: engine.StateReady}); err != nil {
		t.Fatalf("SaveDescriptor() error = %v", err)
	}

	resources, err := store.ListResources(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListResources() error = %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("ListResources() = %d rows, want 2", len(resources))
	}
	q := resources[0]
	if q.Kind != engine.KindQueue || q.State != engine.StateFailed {
		t.Errorf("queue record = %+v, want failed queue kept", q)
	}
	if q.Handle.Attributes["name"] != "jobs" {
		t.Errorf("handle attributes = %v", q.Handle.Attributes)
	}
}

func TestDescriptorRequiresRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveDescriptor(context.Background(), "no-such-run", engine.Descriptor{Kind: engine.KindCompute, ID: "i-1", State: engine.StateReady})
	if err == nil {
		t.Fatal("SaveDescriptor() accepted an unknown run")
	}
}

func TestResults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	saveTestRun(t, store, "run-1", time.Now())

	d := &engine.Descriptor{Kind: engine.KindStorage, ID: "bucket", State: engine.StateInUse}
	results := []engine.OperationResult{
		{Step: "provision_storage", Success: true, Resource: d, At: time.Now(), Duration: 1500 * time.Millisecond},
		{Step: "upload_object", Success: false, Err: errors.New("AccessDenied"), Detail: "upload failed", Resource: d, At: time.Now()},
		{Step: "preflight", Success: true, At: time.Now()},
	}
	for i, r := range results {
		if err := store.SaveResult(ctx, "run-1", i+1, r); err != nil {
			t.Fatalf("SaveResult(%d) error = %v", i+1, err)
		}
	}

	if err := store.SaveResult(ctx, "run-1", 1, results[0]); err == nil {
		t.Error("SaveResult() accepted a duplicate sequence number")
	}

	got, err := store.ListResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListResults() = %d rows, want 3", len(got))
	}
	if got[0].Seq != 1 || got[0].Step != "provision_storage" || !got[0].Success || got[0].Duration != 1500*time.Millisecond {
		t.Errorf("result 1 = %+v", got[0])
	}
	if got[1].Success || got[1].Error != "AccessDenied" || got[1].ResourceKind != engine.KindStorage || got[1].ResourceID != "bucket" {
		t.Errorf("result 2 = %+v", got[1])
	}
	if got[2].ResourceKind != "" {
		t.Errorf("result 3 resource kind = %q, want empty", got[2].ResourceKind)
	}
}

func TestEventSubscriber(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	publisher, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}
	publisher.Subscribe(store.EventSubscriber(nil), nil)

	for _, msg := range []string{"run started", "resource state changed", "run completed"} {
		if err := publisher.Publish(telemetry.Event{
			Type:    telemetry.EventTypeRunStateChanged,
			RunID:   "run-1",
			Message: msg,
			Level:   telemetry.EventLevelInfo,
			Data:    map[string]interface{}{"state": "operating"},
		}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	_ = publisher.Publish(telemetry.Event{Type: telemetry.EventTypeRunStarted, RunID: "run-2", Message: "other"})
	if err := publisher.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	events, err := store.ListEvents(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("ListEvents() = %d events, want 3", len(events))
	}
	if events[0].Message != "run started" || events[2].Message != "run completed" {
		t.Errorf("events out of order: %q ... %q", events[0].Message, events[2].Message)
	}
	if events[1].Data["state"] != "operating" {
		t.Errorf("event data = %v", events[1].Data)
	}
	if events[0].ID == "" {
		t.Error("event ID not persisted")
	}
}

func TestDeleteRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	saveTestRun(t, store, "run-1", time.Now())

	if err := store.SaveDescriptor(ctx, "run-1", engine.Descriptor{Kind: engine.KindCompute, ID: "i-1", State: engine.StateTerminated}); err != nil {
		t.Fatalf("SaveDescriptor() error = %v", err)
	}
	if err := store.SaveResult(ctx, "run-1", 1, engine.OperationResult{Step: "terminate", Success: true}); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if err := store.AppendEvent(ctx, &EventRecord{ID: "ev-1", RunID: "run-1", Type: "run.completed", Level: "info", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if err := store.DeleteRun(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRun() error = %v, want ErrNotFound", err)
	}

	resources, _ := store.ListResources(ctx, "run-1")
	results, _ := store.ListResults(ctx, "run-1")
	events, _ := store.ListEvents(ctx, "run-1", 0)
	if len(resources)+len(results)+len(events) != 0 {
		t.Errorf("rows left after delete: %d resources, %d results, %d events", len(resources), len(results), len(events))
	}
}
