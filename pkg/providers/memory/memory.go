// Package memory implements engine.Adapter as an in-process simulated cloud.
//
// Resources take a configurable number of Describe polls to become ready and
// to disappear after Terminate. Faults can be injected per operation and kind,
// which makes the provider the default backend for engine tests and for
// `cloudcycle run --provider memory`.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

// Operation names accepted by InjectFault.
const (
	OpProvision = "provision"
	OpDescribe  = "describe"
	OpTerminate = "terminate"
	OpSend      = "send_message"
	OpReceive   = "receive_message"
	OpCount     = "count_messages"
	OpUpload    = "upload_object"
)

// ErrNotFound is returned by data-plane calls on unknown resources.
var ErrNotFound = errors.New("resource not found")

// Options tunes the simulation.
type Options struct {
	// PollsBeforeReady is how many Describe calls report provisioning before ready.
	PollsBeforeReady int

	// PollsBeforeGone is how many Describe calls report terminating after Terminate.
	PollsBeforeGone int

	// VisibilityTimeout hides a received message for this long. Zero keeps it hidden.
	VisibilityTimeout time.Duration

	// ReadFiles makes UploadObject read the local file. Off, only the path is recorded.
	ReadFiles bool
}

// Fault makes matching calls fail.
type Fault struct {
	// Op is one of the Op* constants.
	Op string

	// Kind restricts the fault to one kind. Empty matches every kind.
	Kind engine.Kind

	// Err is returned by the failing call.
	Err error

	// Times limits how often the fault fires. Zero means always.
	Times int
}

type resource struct {
	kind        engine.Kind
	id          string
	polls       int
	terminating bool
	termPolls   int
	messages    []*queued
	objects     map[string][]byte
}

type queued struct {
	msg          engine.Message
	invisibleTil time.Time
	inFlight     bool
}

// Provider is a simulated cloud.
type Provider struct {
	opts Options

	mu        sync.Mutex
	resources map[string]*resource
	faults    []*Fault
	stuck     map[engine.Kind]engine.State
	calls     []string
	now       func() time.Time
}

var _ engine.Adapter = (*Provider)(nil)

// New creates an empty simulated cloud.
func New(opts Options) *Provider {
	return &Provider{
		opts:      opts,
		resources: make(map[string]*resource),
		stuck:     make(map[engine.Kind]engine.State),
		now:       time.Now,
	}
}

// InjectFault registers a failure for matching calls.
func (p *Provider) InjectFault(f Fault) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fault := f
	p.faults = append(p.faults, &fault)
}

// StickState makes every resource of kind report state from Describe until terminated.
func (p *Provider) StickState(kind engine.Kind, state engine.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stuck[kind] = state
}

// Calls returns the adapter calls made so far, as "op kind[/id]".
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Live returns the keys of resources that have not been fully released, sorted.
func (p *Provider) Live() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.resources))
	for k := range p.resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object returns the stored object content.
func (p *Provider) Object(bucket, key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[resourceKey(engine.KindStorage, bucket)]
	if !ok {
		return nil, false
	}
	data, ok := r.objects[key]
	return data, ok
}

// ProvisionCompute creates a simulated instance.
func (p *Provider) ProvisionCompute(ctx context.Context, spec engine.ComputeSpec) (engine.Handle, error) {
	if spec.ImageID == "" {
		return engine.Handle{}, fmt.Errorf("image id is required")
	}
	return p.provision(ctx, engine.KindCompute, "", map[string]string{
		"image_id":      spec.ImageID,
		"instance_type": spec.InstanceType,
	})
}

// ProvisionStorage creates a simulated bucket. Bucket names are unique.
func (p *Provider) ProvisionStorage(ctx context.Context, spec engine.StorageSpec) (engine.Handle, error) {
	if spec.Name == "" {
		return engine.Handle{}, fmt.Errorf("bucket name is required")
	}
	return p.provision(ctx, engine.KindStorage, spec.Name, map[string]string{
		"region": spec.Region,
	})
}

// ProvisionQueue creates a simulated queue. The handle ID is a queue URL.
func (p *Provider) ProvisionQueue(ctx context.Context, spec engine.QueueSpec) (engine.Handle, error) {
	if spec.Name == "" {
		return engine.Handle{}, fmt.Errorf("queue name is required")
	}
	return p.provision(ctx, engine.KindQueue, "memory://queues/"+spec.Name, map[string]string{
		"name": spec.Name,
	})
}

func (p *Provider) provision(ctx context.Context, kind engine.Kind, id string, attrs map[string]string) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return engine.Handle{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(OpProvision, kind, id)
	if err := p.fault(OpProvision, kind); err != nil {
		return engine.Handle{}, err
	}

	if id == "" {
		id = "i-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:17]
	}
	key := resourceKey(kind, id)
	if _, exists := p.resources[key]; exists {
		return engine.Handle{}, fmt.Errorf("%s %s already exists", kind, id)
	}

	r := &resource{kind: kind, id: id}
	if kind == engine.KindStorage {
		r.objects = make(map[string][]byte)
	}
	p.resources[key] = r

	return engine.Handle{Kind: kind, ID: id, Attributes: attrs}, nil
}

// Describe advances the simulation by one poll and reports the state.
func (p *Provider) Describe(ctx context.Context, kind engine.Kind, id string) (engine.State, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(OpDescribe, kind, id)
	if err := p.fault(OpDescribe, kind); err != nil {
		return "", err
	}

	key := resourceKey(kind, id)
	r, ok := p.resources[key]
	if !ok {
		return engine.StateTerminated, nil
	}

	if r.terminating {
		r.termPolls++
		if r.termPolls > p.opts.PollsBeforeGone {
			delete(p.resources, key)
			return engine.StateTerminated, nil
		}
		return engine.StateTerminating, nil
	}

	if state, ok := p.stuck[kind]; ok {
		return state, nil
	}

	r.polls++
	if r.polls > p.opts.PollsBeforeReady {
		return engine.StateReady, nil
	}
	return engine.StateProvisioning, nil
}

// SendMessage appends a visible message to the queue.
func (p *Provider) SendMessage(ctx context.Context, queue engine.Handle, msg engine.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(OpSend, engine.KindQueue, queue.ID)
	if err := p.fault(OpSend, engine.KindQueue); err != nil {
		return err
	}
	r, err := p.live(engine.KindQueue, queue.ID)
	if err != nil {
		return err
	}
	r.messages = append(r.messages, &queued{msg: msg})
	return nil
}

// ReceiveMessage returns the oldest visible message and hides it.
// The simulation never blocks, so wait is ignored.
func (p *Provider) ReceiveMessage(ctx context.Context, queue engine.Handle, wait time.Duration) (*engine.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(OpReceive, engine.KindQueue, queue.ID)
	if err := p.fault(OpReceive, engine.KindQueue); err != nil {
		return nil, err
	}
	r, err := p.live(engine.KindQueue, queue.ID)
	if err != nil {
		return nil, err
	}

	now := p.now()
	for _, q := range r.messages {
		if !p.visible(q, now) {
			continue
		}
		q.inFlight = true
		if p.opts.VisibilityTimeout > 0 {
			q.invisibleTil = now.Add(p.opts.VisibilityTimeout)
		}
		msg := q.msg
		return &msg, nil
	}
	return nil, nil
}

// CountMessages counts visible messages. In-flight messages are not counted.
func (p *Provider) CountMessages(ctx context.Context, queue engine.Handle) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(OpCount, engine.KindQueue, queue.ID)
	if err := p.fault(OpCount, engine.KindQueue); err != nil {
		return 0, err
	}
	r, err := p.live(engine.KindQueue, queue.ID)
	if err != nil {
		return 0, err
	}

	now := p.now()
	n := 0
	for _, q := range r.messages {
		if p.visible(q, now) {
			n++
		}
	}
	return n, nil
}

// UploadObject stores an object in the bucket.
func (p *Provider) UploadObject(ctx context.Context, bucket engine.Handle, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var data []byte
	if p.opts.ReadFiles {
		b, err := os.ReadFile(localPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", localPath, err)
		}
		data = b
	} else {
		data = []byte(localPath)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(OpUpload, engine.KindStorage, bucket.ID)
	if err := p.fault(OpUpload, engine.KindStorage); err != nil {
		return err
	}
	r, err := p.live(engine.KindStorage, bucket.ID)
	if err != nil {
		return err
	}
	r.objects[key] = data
	return nil
}

// Terminate starts releasing a resource. Terminating an unknown resource succeeds.
func (p *Provider) Terminate(ctx context.Context, kind engine.Kind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.record(OpTerminate, kind, id)
	if err := p.fault(OpTerminate, kind); err != nil {
		return err
	}
	if r, ok := p.resources[resourceKey(kind, id)]; ok {
		r.terminating = true
	}
	return nil
}

func (p *Provider) visible(q *queued, now time.Time) bool {
	if !q.inFlight {
		return true
	}
	return p.opts.VisibilityTimeout > 0 && !now.Before(q.invisibleTil)
}

func (p *Provider) live(kind engine.Kind, id string) (*resource, error) {
	r, ok := p.resources[resourceKey(kind, id)]
	if !ok || r.terminating {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return r, nil
}

// fault returns the first matching injected error and consumes one use of it.
func (p *Provider) fault(op string, kind engine.Kind) error {
	for i, f := range p.faults {
		if f.Op != op || (f.Kind != "" && f.Kind != kind) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				p.faults = append(p.faults[:i], p.faults[i+1:]...)
			}
		}
		return f.Err
	}
	return nil
}

func (p *Provider) record(op string, kind engine.Kind, id string) {
	call := op + " " + string(kind)
	if id != "" {
		call += "/" + id
	}
	p.calls = append(p.calls, call)
}

func resourceKey(kind engine.Kind, id string) string {
	return string(kind) + "/" + id
}
