package engine

import (
	"sync"
	"time"
)

// TransitionObserver is notified after every successful state change.
// It runs outside the registry lock and must not block for long.
type TransitionObserver func(d Descriptor, from State)

// Registry is the single source of truth for resources created during a run.
// Insertion order is creation order and defines teardown order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]*Descriptor
	observer TransitionObserver
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Descriptor),
		now:     time.Now,
	}
}

// Observe installs a transition observer. Register counts as a transition from "".
func (r *Registry) Observe(fn TransitionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// Register adds a descriptor. It fails with *DuplicateResourceError if the
// (kind, id) pair is already held.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Kind.Validate(); err != nil {
		return err
	}
	if d.State == "" {
		d.State = StateRequested
	}
	if err := d.State.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	key := d.Key()
	if _, exists := r.entries[key]; exists {
		r.mu.Unlock()
		return &DuplicateResourceError{Kind: d.Kind, ID: d.ID}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now()
	}
	d.UpdatedAt = d.CreatedAt
	stored := d
	r.entries[key] = &stored
	r.order = append(r.order, key)
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer(stored, "")
	}
	return nil
}

// Transition moves a descriptor to next. It fails with *InvalidTransitionError when
// the move is not allowed or the resource is unknown.
func (r *Registry) Transition(kind Kind, id string, next State) error {
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	d, ok := r.entries[descriptorKey(kind, id)]
	if !ok {
		r.mu.Unlock()
		return &InvalidTransitionError{Kind: kind, ID: id, To: next}
	}
	from := d.State
	if !from.CanTransition(next) {
		r.mu.Unlock()
		return &InvalidTransitionError{Kind: kind, ID: id, From: from, To: next}
	}
	if from == next {
		r.mu.Unlock()
		return nil
	}
	d.State = next
	d.UpdatedAt = r.now()
	snapshot := *d
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer(snapshot, from)
	}
	return nil
}

// Get returns a copy of the descriptor for (kind, id).
func (r *Registry) Get(kind Kind, id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[descriptorKey(kind, id)]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// Snapshot returns copies of every descriptor in creation order.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.entries[key])
	}
	return out
}

// ByKind returns the first descriptor of the given kind, in creation order.
func (r *Registry) ByKind(kind Kind) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range r.order {
		if d := r.entries[key]; d.Kind == kind {
			return *d, true
		}
	}
	return Descriptor{}, false
}

// Remove drops a descriptor. Removing an absent resource is a no-op.
func (r *Registry) Remove(kind Kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := descriptorKey(kind, id)
	if _, ok := r.entries[key]; !ok {
		return
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of held descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
