package engine

import (
	"context"
	"time"

	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

// Adapter wraps a cloud provider's resource-management API.
// Implementations must be safe for concurrent use by independent resource kinds.
type Adapter interface {
	// ProvisionCompute requests a compute instance and returns its handle.
	ProvisionCompute(ctx context.Context, spec ComputeSpec) (Handle, error)

	// ProvisionStorage requests an object-storage bucket and returns its handle.
	ProvisionStorage(ctx context.Context, spec StorageSpec) (Handle, error)

	// ProvisionQueue requests a message queue and returns its handle.
	ProvisionQueue(ctx context.Context, spec QueueSpec) (Handle, error)

	// Describe reports the provider-side state of a resource.
	// Resources the provider no longer knows about report StateTerminated.
	Describe(ctx context.Context, kind Kind, id string) (State, error)

	// SendMessage enqueues a message.
	SendMessage(ctx context.Context, queue Handle, msg Message) error

	// ReceiveMessage reads at most one message, waiting up to wait.
	// It returns nil when the queue is empty.
	ReceiveMessage(ctx context.Context, queue Handle, wait time.Duration) (*Message, error)

	// CountMessages returns the approximate number of visible messages.
	CountMessages(ctx context.Context, queue Handle) (int, error)

	// UploadObject stores a local file in the bucket under key.
	UploadObject(ctx context.Context, bucket Handle, localPath, key string) error

	// Terminate releases a resource.
	Terminate(ctx context.Context, kind Kind, id string) error
}

// Ledger persists run history. Write failures are logged and never abort a run.
type Ledger interface {
	// SaveRun upserts the run header.
	SaveRun(ctx context.Context, run *RunRecord) error

	// SaveDescriptor upserts a descriptor snapshot for a run.
	SaveDescriptor(ctx context.Context, runID string, d Descriptor) error

	// SaveResult appends an operation result for a run.
	SaveResult(ctx context.Context, runID string, seq int, r OperationResult) error
}

// Preflight inspects a run spec before any resource is provisioned.
// Returning a *PolicyDeniedError aborts the run with nothing created.
type Preflight interface {
	Check(ctx context.Context, spec RunSpec) (warnings []string, err error)
}

// EventSink receives structured lifecycle events.
type EventSink interface {
	Publish(event telemetry.Event) error
}

// RunRecord is the persisted header of a run.
type RunRecord struct {
	ID          string     `json:"id"`
	State       RunState   `json:"state"`
	Provider    string     `json:"provider"`
	Region      string     `json:"region"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	AbortReason string     `json:"abort_reason,omitempty"`
	TraceID     string     `json:"trace_id,omitempty"`
}
