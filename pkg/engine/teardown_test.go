package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestCoordinator(adapter Adapter, r *Registry) *TeardownCoordinator {
	return NewTeardownCoordinator(adapter, NewVerifier(adapter, r, nil), PollPolicy{MaxAttempts: 3}, nil)
}

func TestTeardownReverseOrder(t *testing.T) {
	adapter := newStubAdapter()
	r := NewRegistry()
	registerAt(t, r, KindCompute, "i-1", StateReady)
	registerAt(t, r, KindStorage, "b-1", StateInUse)
	registerAt(t, r, KindQueue, "q-1", StateInUse)

	results := newTestCoordinator(adapter, r).TeardownAll(context.Background(), r)

	want := []string{"queue/q-1", "storage/b-1", "compute/i-1"}
	if strings.Join(adapter.terminated, ",") != strings.Join(want, ",") {
		t.Fatalf("terminate order = %v, want %v", adapter.terminated, want)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, res := range results {
		if !res.Success {
			t.Errorf("%s teardown failed: %v", res.Resource.Key(), res.Err)
		}
		if res.Resource.State != StateTerminated {
			t.Errorf("%s final state = %s, want terminated", res.Resource.Key(), res.Resource.State)
		}
	}
	if r.Len() != 0 {
		t.Errorf("registry holds %d descriptors after teardown", r.Len())
	}
}

func TestTeardownIsolatesFailures(t *testing.T) {
	adapter := newStubAdapter()
	adapter.terminateErr[descriptorKey(KindStorage, "b-1")] = errors.New("BucketNotEmpty")

	r := NewRegistry()
	registerAt(t, r, KindCompute, "i-1", StateReady)
	registerAt(t, r, KindStorage, "b-1", StateReady)
	registerAt(t, r, KindQueue, "q-1", StateReady)

	results := newTestCoordinator(adapter, r).TeardownAll(context.Background(), r)

	if len(adapter.terminated) != 3 {
		t.Fatalf("terminate attempted on %d resources, want 3", len(adapter.terminated))
	}

	var failed []OperationResult
	for _, res := range results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	if len(failed) != 1 {
		t.Fatalf("failed results = %d, want 1", len(failed))
	}
	if !IsAdapterError(failed[0].Err) {
		t.Errorf("failure error = %v, want AdapterError", failed[0].Err)
	}

	d, ok := r.Get(KindStorage, "b-1")
	if !ok || d.State != StateFailed {
		t.Errorf("failed bucket = %+v, %v; want kept as failed", d, ok)
	}
	if r.Len() != 1 {
		t.Errorf("registry Len() = %d, want 1", r.Len())
	}
}

func TestTeardownUnconfirmed(t *testing.T) {
	adapter := newStubAdapter()
	r := NewRegistry()
	registerAt(t, r, KindCompute, "i-1", StateReady)

	c := newTestCoordinator(&stuckTerminating{adapter}, r)
	results := c.TeardownAll(context.Background(), r)

	if len(results) != 1 || results[0].Success {
		t.Fatalf("results = %+v, want one failure", results)
	}
	if !IsVerificationTimeout(results[0].Err) {
		t.Errorf("error = %v, want VerificationTimeoutError", results[0].Err)
	}
	if d, _ := r.Get(KindCompute, "i-1"); d.State != StateFailed {
		t.Errorf("state = %s, want failed", d.State)
	}
}

func TestTeardownFailedResource(t *testing.T) {
	adapter := newStubAdapter()
	r := NewRegistry()
	registerAt(t, r, KindQueue, "q-1", StateFailed)

	results := newTestCoordinator(adapter, r).TeardownAll(context.Background(), r)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("teardown of failed resource = %+v", results)
	}
}

func TestTeardownEmptyRegistryIsIdempotent(t *testing.T) {
	adapter := newStubAdapter()
	r := NewRegistry()
	c := newTestCoordinator(adapter, r)

	for i := 0; i < 2; i++ {
		if results := c.TeardownAll(context.Background(), r); len(results) != 0 {
			t.Fatalf("pass %d: results = %d, want 0", i, len(results))
		}
	}
	if len(adapter.terminated) != 0 {
		t.Errorf("terminate called %d times on empty registry", len(adapter.terminated))
	}
}

func TestTeardownTwiceAfterSuccess(t *testing.T) {
	adapter := newStubAdapter()
	r := NewRegistry()
	registerAt(t, r, KindQueue, "q-1", StateReady)
	c := newTestCoordinator(adapter, r)

	first := c.TeardownAll(context.Background(), r)
	second := c.TeardownAll(context.Background(), r)

	if len(first) != 1 || !first[0].Success {
		t.Fatalf("first teardown = %+v", first)
	}
	if len(second) != 0 {
		t.Errorf("second teardown produced %d results", len(second))
	}
	if len(adapter.terminated) != 1 {
		t.Errorf("terminate called %d times, want 1", len(adapter.terminated))
	}
}

// stuckTerminating never confirms termination.
type stuckTerminating struct {
	*stubAdapter
}

func (s *stuckTerminating) Describe(ctx context.Context, kind Kind, id string) (State, error) {
	_, _ = s.stubAdapter.Describe(ctx, kind, id)
	return StateTerminating, nil
}
