package engine

import (
	"context"
	"sync"
	"time"
)

// stubAdapter answers Describe from a script and records calls.
type stubAdapter struct {
	mu sync.Mutex

	// states maps kind/id to the states Describe returns, one per call.
	// The last state repeats once the script is exhausted.
	states map[string][]State

	describeErr  map[string]error
	terminateErr map[string]error

	describes  map[string]int
	terminated []string
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{
		states:       make(map[string][]State),
		describeErr:  make(map[string]error),
		terminateErr: make(map[string]error),
		describes:    make(map[string]int),
	}
}

func (s *stubAdapter) script(kind Kind, id string, states ...State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[descriptorKey(kind, id)] = states
}

func (s *stubAdapter) describeCount(kind Kind, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.describes[descriptorKey(kind, id)]
}

func (s *stubAdapter) ProvisionCompute(ctx context.Context, spec ComputeSpec) (Handle, error) {
	return Handle{Kind: KindCompute, ID: "i-stub"}, nil
}

func (s *stubAdapter) ProvisionStorage(ctx context.Context, spec StorageSpec) (Handle, error) {
	return Handle{Kind: KindStorage, ID: spec.Name}, nil
}

func (s *stubAdapter) ProvisionQueue(ctx context.Context, spec QueueSpec) (Handle, error) {
	return Handle{Kind: KindQueue, ID: spec.Name}, nil
}

func (s *stubAdapter) Describe(ctx context.Context, kind Kind, id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := descriptorKey(kind, id)
	n := s.describes[key]
	s.describes[key] = n + 1
	if err := s.describeErr[key]; err != nil {
		return "", err
	}
	script := s.states[key]
	if len(script) == 0 {
		return StateReady, nil
	}
	if n >= len(script) {
		return script[len(script)-1], nil
	}
	return script[n], nil
}

func (s *stubAdapter) SendMessage(ctx context.Context, queue Handle, msg Message) error {
	return nil
}

func (s *stubAdapter) ReceiveMessage(ctx context.Context, queue Handle, wait time.Duration) (*Message, error) {
	return nil, nil
}

func (s *stubAdapter) CountMessages(ctx context.Context, queue Handle) (int, error) {
	return 0, nil
}

func (s *stubAdapter) UploadObject(ctx context.Context, bucket Handle, localPath, key string) error {
	return nil
}

func (s *stubAdapter) Terminate(ctx context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := descriptorKey(kind, id)
	s.terminated = append(s.terminated, key)
	if err := s.terminateErr[key]; err != nil {
		return err
	}
	s.states[key] = []State{StateTerminated}
	s.describes[key] = 0
	return nil
}

func registerAt(t testingT, r *Registry, kind Kind, id string, state State) {
	t.Helper()
	if err := r.Register(Descriptor{Kind: kind, ID: id, Handle: Handle{Kind: kind, ID: id}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if state != StateRequested {
		if err := r.Transition(kind, id, state); err != nil {
			t.Fatalf("Transition(%s) error = %v", state, err)
		}
	}
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}
