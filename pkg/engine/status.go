package engine

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the class of cloud resource a descriptor tracks.
type Kind string

const (
	// KindCompute is a virtual machine instance.
	KindCompute Kind = "compute"

	// KindStorage is an object-storage bucket.
	KindStorage Kind = "storage"

	// KindQueue is a message queue.
	KindQueue Kind = "queue"
)

// Kinds lists every resource kind in provisioning order.
var Kinds = []Kind{KindCompute, KindStorage, KindQueue}

// Validate checks if the kind is valid.
func (k Kind) Validate() error {
	switch k {
	case KindCompute, KindStorage, KindQueue:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// State represents the lifecycle state of a single resource.
type State string

const (
	// StateRequested indicates the provider accepted the provision call.
	StateRequested State = "requested"

	// StateProvisioning indicates the resource is being brought up.
	StateProvisioning State = "provisioning"

	// StateReady indicates the resource is operational.
	StateReady State = "ready"

	// StateInUse indicates the resource has been used by an operating step.
	StateInUse State = "in_use"

	// StateTerminating indicates a terminate call has been issued.
	StateTerminating State = "terminating"

	// StateTerminated indicates the provider confirmed the resource is gone.
	StateTerminated State = "terminated"

	// StateFailed indicates the resource could not reach or confirm a state.
	StateFailed State = "failed"
)

// stateRank orders the forward lifecycle. Failed sits outside the order.
var stateRank = map[State]int{
	StateRequested:    0,
	StateProvisioning: 1,
	StateReady:        2,
	StateInUse:        3,
	StateTerminating:  4,
	StateTerminated:   5,
}

// Validate checks if the state is valid.
func (s State) Validate() error {
	if s == StateFailed {
		return nil
	}
	if _, ok := stateRank[s]; !ok {
		return fmt.Errorf("invalid resource state: %s", s)
	}
	return nil
}

// IsTerminal returns true if no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// IsLive returns true if the resource is expected to exist at the provider.
func (s State) IsLive() bool {
	return s == StateReady || s == StateInUse
}

// CanTransition reports whether moving from s to next respects the forward-only rule.
// Any non-terminal state may move to failed, and a failed resource may still be
// released through terminating. Same-state moves are accepted.
func (s State) CanTransition(next State) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	if s == StateFailed {
		return next == StateTerminating
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to > from
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = State(str)
	return s.Validate()
}

// RunState represents the phase of a lifecycle run.
type RunState string

const (
	RunStateInit             RunState = "init"
	RunStateProvisioning     RunState = "provisioning"
	RunStateVerifying        RunState = "verifying"
	RunStateOperating        RunState = "operating"
	RunStateReVerifying      RunState = "reverifying"
	RunStateTearingDown      RunState = "tearing_down"
	RunStateVerifiedTornDown RunState = "verified_torn_down"
	RunStateAborted          RunState = "aborted"
)

// IsTerminal returns true if the run state is final.
func (s RunState) IsTerminal() bool {
	return s == RunStateVerifiedTornDown || s == RunStateAborted
}

// Validate checks if the run state is valid.
func (s RunState) Validate() error {
	switch s {
	case RunStateInit, RunStateProvisioning, RunStateVerifying, RunStateOperating,
		RunStateReVerifying, RunStateTearingDown, RunStateVerifiedTornDown, RunStateAborted:
		return nil
	default:
		return fmt.Errorf("invalid run state: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunState(str)
	return s.Validate()
}
