package engine

import (
	"time"
)

// Handle is the provider-side reference returned by a provision call.
// The engine never interprets it beyond Kind and ID.
type Handle struct {
	// Kind is the resource kind the handle refers to.
	Kind Kind `json:"kind"`

	// ID is the provider identifier (instance id, bucket name, queue URL).
	ID string `json:"id"`

	// Attributes carries provider-specific extras such as the queue name or ARN.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Descriptor is the in-memory record of one resource created during a run.
type Descriptor struct {
	// Kind is the resource kind.
	Kind Kind `json:"kind"`

	// ID is the provider identifier, unique per kind.
	ID string `json:"id"`

	// Handle is the opaque provider handle used for data-plane calls.
	Handle Handle `json:"handle"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// CreatedAt is when the descriptor was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the registry key for the descriptor.
func (d Descriptor) Key() string {
	return descriptorKey(d.Kind, d.ID)
}

func descriptorKey(kind Kind, id string) string {
	return string(kind) + "/" + id
}

// ComputeSpec describes the compute instance to provision.
type ComputeSpec struct {
	// ImageID is the machine image to boot.
	ImageID string `json:"image_id"`

	// InstanceType is the provider instance size.
	InstanceType string `json:"instance_type"`

	// KeyName is the SSH key pair name attached to the instance.
	KeyName string `json:"key_name,omitempty"`

	// Tags are applied to the instance at creation time.
	Tags map[string]string `json:"tags,omitempty"`
}

// StorageSpec describes the object-storage bucket to provision.
type StorageSpec struct {
	// Name is the globally unique bucket name.
	Name string `json:"name"`

	// Region is the bucket location constraint.
	Region string `json:"region"`
}

// QueueSpec describes the message queue to provision.
type QueueSpec struct {
	// Name is the queue name.
	Name string `json:"name"`

	// Attributes are provider queue attributes (DelaySeconds, VisibilityTimeout).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Message is a queue payload with an optional title attribute.
type Message struct {
	Body  string `json:"body"`
	Title string `json:"title,omitempty"`
}

// UploadSpec names a local file and the object key it is stored under.
type UploadSpec struct {
	LocalPath string `json:"local_path"`
	Key       string `json:"key"`
}

// RunSpec is everything one lifecycle run needs to know about what to build and use.
// A nil resource spec means that kind is not provisioned.
type RunSpec struct {
	// Region is the provider region.
	Region string `json:"region"`

	// Compute is the instance to provision.
	Compute *ComputeSpec `json:"compute,omitempty"`

	// Storage is the bucket to provision.
	Storage *StorageSpec `json:"storage,omitempty"`

	// Queue is the queue to provision.
	Queue *QueueSpec `json:"queue,omitempty"`

	// Upload is the object uploaded to the bucket while operating.
	Upload UploadSpec `json:"upload"`

	// Message is sent to and read back from the queue while operating.
	Message Message `json:"message"`
}

// RequestedKinds returns the kinds this run provisions, in provisioning order.
func (s RunSpec) RequestedKinds() []Kind {
	kinds := make([]Kind, 0, len(Kinds))
	if s.Compute != nil {
		kinds = append(kinds, KindCompute)
	}
	if s.Storage != nil {
		kinds = append(kinds, KindStorage)
	}
	if s.Queue != nil {
		kinds = append(kinds, KindQueue)
	}
	return kinds
}

// OperationResult is the outcome of one orchestrator step.
type OperationResult struct {
	// Step names the operation (provision, await_ready, upload_object, terminate, ...).
	Step string `json:"step"`

	// Success reports whether the step achieved its goal.
	Success bool `json:"success"`

	// Detail is a short machine-oriented description of the outcome.
	Detail string `json:"detail,omitempty"`

	// Resource is a snapshot of the descriptor the step acted on, if any.
	Resource *Descriptor `json:"resource,omitempty"`

	// Err is the underlying failure, if any.
	Err error `json:"-"`

	// At is when the step finished.
	At time.Time `json:"at"`

	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`
}

// Error returns the failure message or an empty string.
func (r OperationResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// PollPolicy bounds a verification poll loop.
type PollPolicy struct {
	// MaxAttempts is the number of Describe calls before giving up. Values below one mean one.
	MaxAttempts int `json:"max_attempts"`

	// Interval is the fixed wait between attempts.
	Interval time.Duration `json:"interval"`
}

// Budget returns the worst-case wall time spent waiting between attempts.
func (p PollPolicy) Budget() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Interval
}

// Report summarises a finished run.
type Report struct {
	// RunID is the unique run identifier.
	RunID string `json:"run_id"`

	// State is the terminal run state.
	State RunState `json:"state"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached its terminal state.
	CompletedAt time.Time `json:"completed_at"`

	// Results holds every non-teardown step outcome in execution order.
	Results []OperationResult `json:"results"`

	// Teardown holds the teardown outcomes in processing order.
	Teardown []OperationResult `json:"teardown"`

	// Resources is the final descriptor snapshot, including every resource ever registered.
	Resources []Descriptor `json:"resources"`

	// AbortReason explains why the run aborted, if it did.
	AbortReason string `json:"abort_reason,omitempty"`

	// TraceID is the run span's trace, empty without a tracer.
	TraceID string `json:"trace_id,omitempty"`
}

// Duration returns the run wall time.
func (r *Report) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// FailedResults returns every failed result, teardown included.
func (r *Report) FailedResults() []OperationResult {
	var failed []OperationResult
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	for _, res := range r.Teardown {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}

// TeardownFailures counts failed teardown results.
func (r *Report) TeardownFailures() int {
	n := 0
	for _, res := range r.Teardown {
		if !res.Success {
			n++
		}
	}
	return n
}

// ExitCode returns 0 only when every resource was torn down and confirmed.
func (r *Report) ExitCode() int {
	if r.State == RunStateVerifiedTornDown && r.TeardownFailures() == 0 {
		return 0
	}
	return 1
}
