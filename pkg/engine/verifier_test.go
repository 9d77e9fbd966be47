package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAwaitStateSucceeds(t *testing.T) {
	adapter := newStubAdapter()
	adapter.script(KindCompute, "i-1", StateProvisioning, StateProvisioning, StateReady)

	r := NewRegistry()
	registerAt(t, r, KindCompute, "i-1", StateProvisioning)
	d, _ := r.Get(KindCompute, "i-1")

	v := NewVerifier(adapter, r, nil)
	res := v.AwaitState(context.Background(), d, StateReady, PollPolicy{MaxAttempts: 5})

	if !res.Success {
		t.Fatalf("AwaitState() failed: %v", res.Err)
	}
	if got := adapter.describeCount(KindCompute, "i-1"); got != 3 {
		t.Errorf("Describe calls = %d, want 3", got)
	}
	if cur, _ := r.Get(KindCompute, "i-1"); cur.State != StateReady {
		t.Errorf("state = %s, want ready", cur.State)
	}
	if res.Step != "await_ready" {
		t.Errorf("step = %s", res.Step)
	}
}

func TestAwaitStateExhaustsExactBudget(t *testing.T) {
	adapter := newStubAdapter()
	adapter.script(KindQueue, "q-1", StateProvisioning)

	r := NewRegistry()
	registerAt(t, r, KindQueue, "q-1", StateProvisioning)
	d, _ := r.Get(KindQueue, "q-1")

	v := NewVerifier(adapter, r, nil)
	res := v.AwaitState(context.Background(), d, StateReady, PollPolicy{MaxAttempts: 3, Interval: 0})

	if res.Success {
		t.Fatal("AwaitState() succeeded on a resource that never became ready")
	}
	if got := adapter.describeCount(KindQueue, "q-1"); got != 3 {
		t.Errorf("Describe calls = %d, want exactly 3", got)
	}

	var timeout *VerificationTimeoutError
	if !errors.As(res.Err, &timeout) {
		t.Fatalf("error = %v, want VerificationTimeoutError", res.Err)
	}
	if timeout.Attempts != 3 || timeout.Observed != StateProvisioning {
		t.Errorf("timeout = %+v", timeout)
	}
	if cur, _ := r.Get(KindQueue, "q-1"); cur.State != StateFailed {
		t.Errorf("state = %s, want failed", cur.State)
	}
}

func TestAwaitStateSingleAttempt(t *testing.T) {
	adapter := newStubAdapter()
	adapter.script(KindStorage, "b", StateProvisioning)

	r := NewRegistry()
	registerAt(t, r, KindStorage, "b", StateProvisioning)
	d, _ := r.Get(KindStorage, "b")

	res := NewVerifier(adapter, r, nil).AwaitState(context.Background(), d, StateReady, PollPolicy{MaxAttempts: 1, Interval: time.Hour})
	if res.Success {
		t.Fatal("AwaitState() succeeded")
	}
	if got := adapter.describeCount(KindStorage, "b"); got != 1 {
		t.Errorf("Describe calls = %d, want 1", got)
	}
}

func TestAwaitStateStopsOnProviderFailure(t *testing.T) {
	adapter := newStubAdapter()
	adapter.script(KindCompute, "i-1", StateProvisioning, StateFailed)

	r := NewRegistry()
	registerAt(t, r, KindCompute, "i-1", StateProvisioning)
	d, _ := r.Get(KindCompute, "i-1")

	res := NewVerifier(adapter, r, nil).AwaitState(context.Background(), d, StateReady, PollPolicy{MaxAttempts: 10})
	if res.Success {
		t.Fatal("AwaitState() succeeded")
	}
	if got := adapter.describeCount(KindCompute, "i-1"); got != 2 {
		t.Errorf("Describe calls = %d, want 2", got)
	}
	if IsVerificationTimeout(res.Err) {
		t.Error("early stop reported as timeout")
	}
}

func TestAwaitStateDescribeErrorsCountAsAttempts(t *testing.T) {
	adapter := newStubAdapter()
	adapter.describeErr[descriptorKey(KindQueue, "q")] = errors.New("throttled")

	r := NewRegistry()
	registerAt(t, r, KindQueue, "q", StateProvisioning)
	d, _ := r.Get(KindQueue, "q")

	res := NewVerifier(adapter, r, nil).AwaitState(context.Background(), d, StateReady, PollPolicy{MaxAttempts: 4})
	if res.Success {
		t.Fatal("AwaitState() succeeded")
	}
	if got := adapter.describeCount(KindQueue, "q"); got != 4 {
		t.Errorf("Describe calls = %d, want 4", got)
	}
	if !IsVerificationTimeout(res.Err) || !IsAdapterError(res.Err) {
		t.Errorf("error = %v, want timeout joined with adapter error", res.Err)
	}
}

func TestAwaitStateCancelled(t *testing.T) {
	adapter := newStubAdapter()
	adapter.script(KindQueue, "q", StateProvisioning)

	r := NewRegistry()
	registerAt(t, r, KindQueue, "q", StateProvisioning)
	d, _ := r.Get(KindQueue, "q")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewVerifier(adapter, r, nil).AwaitState(ctx, d, StateReady, PollPolicy{MaxAttempts: 12, Interval: time.Hour})
	if res.Success {
		t.Fatal("AwaitState() succeeded on a cancelled context")
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", res.Err)
	}
	if got := adapter.describeCount(KindQueue, "q"); got != 0 {
		t.Errorf("Describe calls = %d, want 0", got)
	}
}

func TestAwaitStateInUseSatisfiesReady(t *testing.T) {
	adapter := newStubAdapter()

	r := NewRegistry()
	registerAt(t, r, KindStorage, "b", StateInUse)
	d, _ := r.Get(KindStorage, "b")

	res := NewVerifier(adapter, r, nil).AwaitState(context.Background(), d, StateReady, PollPolicy{MaxAttempts: 1})
	if !res.Success {
		t.Fatalf("re-verify of in_use resource failed: %v", res.Err)
	}
	if cur, _ := r.Get(KindStorage, "b"); cur.State != StateInUse {
		t.Errorf("state = %s, want in_use kept", cur.State)
	}
}
