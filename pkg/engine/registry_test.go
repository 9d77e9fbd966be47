package engine

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Descriptor{Kind: KindQueue, ID: "q-1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	d, ok := r.Get(KindQueue, "q-1")
	if !ok {
		t.Fatal("Get() did not find registered descriptor")
	}
	if d.State != StateRequested {
		t.Errorf("default state = %s, want %s", d.State, StateRequested)
	}
	if d.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Kind: KindCompute, ID: "i-1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := r.Register(Descriptor{Kind: KindCompute, ID: "i-1"})
	var dup *DuplicateResourceError
	if !errors.As(err, &dup) {
		t.Fatalf("second Register() error = %v, want DuplicateResourceError", err)
	}
	if !IsInvariant(err) {
		t.Error("duplicate registration should classify as invariant")
	}

	if err := r.Register(Descriptor{Kind: KindStorage, ID: "i-1"}); err != nil {
		t.Errorf("same id under another kind rejected: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistryRejectsUnknownKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Kind: "database", ID: "db-1"}); err == nil {
		t.Fatal("Register() accepted an unknown kind")
	}
}

func TestRegistryTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		next    State
		wantErr bool
	}{
		{"forward", nil, StateProvisioning, false},
		{"skip forward", nil, StateReady, false},
		{"same state", []State{StateReady}, StateReady, false},
		{"backward", []State{StateReady}, StateProvisioning, true},
		{"to failed", []State{StateInUse}, StateFailed, false},
		{"failed to terminating", []State{StateFailed}, StateTerminating, false},
		{"failed to ready", []State{StateFailed}, StateReady, true},
		{"out of terminated", []State{StateTerminating, StateTerminated}, StateFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if err := r.Register(Descriptor{Kind: KindStorage, ID: "b"}); err != nil {
				t.Fatalf("Register() error = %v", err)
			}
			for _, s := range tt.path {
				if err := r.Transition(KindStorage, "b", s); err != nil {
					t.Fatalf("setup Transition(%s) error = %v", s, err)
				}
			}

			err := r.Transition(KindStorage, "b", tt.next)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition(%s) error = %v, wantErr %v", tt.next, err, tt.wantErr)
			}
			if tt.wantErr {
				var inv *InvalidTransitionError
				if !errors.As(err, &inv) {
					t.Errorf("error type = %T, want *InvalidTransitionError", err)
				}
			}
		})
	}
}

func TestRegistryTransitionUnknown(t *testing.T) {
	r := NewRegistry()
	err := r.Transition(KindQueue, "missing", StateReady)
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) || inv.From != "" {
		t.Fatalf("Transition() on unknown resource error = %v", err)
	}
}

func TestRegistryObserver(t *testing.T) {
	r := NewRegistry()

	type change struct {
		from, to State
	}
	var got []change
	r.Observe(func(d Descriptor, from State) {
		got = append(got, change{from, d.State})
	})

	_ = r.Register(Descriptor{Kind: KindQueue, ID: "q"})
	_ = r.Transition(KindQueue, "q", StateProvisioning)
	_ = r.Transition(KindQueue, "q", StateProvisioning)
	_ = r.Transition(KindQueue, "q", StateRequested)

	want := []change{{"", StateRequested}, {StateRequested, StateProvisioning}}
	if len(got) != len(want) {
		t.Fatalf("observer saw %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRegistrySnapshotOrderAndRemove(t *testing.T) {
	r := NewRegistry()
	for _, d := range []Descriptor{
		{Kind: KindCompute, ID: "i-1"},
		{Kind: KindStorage, ID: "b-1"},
		{Kind: KindQueue, ID: "q-1"},
	} {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	r.Remove(KindStorage, "b-1")
	r.Remove(KindStorage, "b-1")

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].ID != "i-1" || snap[1].ID != "q-1" {
		t.Fatalf("Snapshot() = %+v", snap)
	}

	snap[0].State = StateFailed
	if d, _ := r.Get(KindCompute, "i-1"); d.State != StateRequested {
		t.Error("Snapshot() returned a shared descriptor")
	}

	if d, ok := r.ByKind(KindQueue); !ok || d.ID != "q-1" {
		t.Errorf("ByKind(queue) = %+v, %v", d, ok)
	}
	if _, ok := r.ByKind(KindStorage); ok {
		t.Error("ByKind(storage) found a removed descriptor")
	}
}

func TestRegistryConcurrentRegister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Register(Descriptor{Kind: KindQueue, ID: "shared"})
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("%d concurrent registrations succeeded, want 1", ok)
	}
}
