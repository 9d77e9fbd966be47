package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

const (
	defaultParallelism     = 3
	defaultTeardownTimeout = 10 * time.Minute
)

// DefaultReceiveWait mirrors the two-second queue read wait.
const DefaultReceiveWait = 2 * time.Second

// errNoResourceID marks a provision call that returned a handle without an ID.
var errNoResourceID = errors.New("provider returned no resource id")

// DefaultReadyPoll mirrors a one-minute provisioning wait split into 5s polls.
var DefaultReadyPoll = PollPolicy{MaxAttempts: 12, Interval: 5 * time.Second}

// DefaultTerminationPoll mirrors a one-minute post-teardown wait split into 5s polls.
var DefaultTerminationPoll = PollPolicy{MaxAttempts: 12, Interval: 5 * time.Second}

// Options configures an Orchestrator. Every collaborator is optional.
type Options struct {
	// Provider names the adapter for the ledger and events.
	Provider string

	// Parallelism bounds concurrent provisioning and verification. Defaults to 3.
	Parallelism int

	// ReadyPoll bounds the wait for each resource to become ready.
	ReadyPoll PollPolicy

	// ReVerifyPoll bounds the post-operating liveness check. Defaults to a single Describe.
	ReVerifyPoll PollPolicy

	// TerminationPoll bounds the wait for each terminate to be confirmed.
	TerminationPoll PollPolicy

	// ReceiveWait is the queue long-poll duration for receive steps.
	// Zero receives without waiting; callers wanting the usual wait pass DefaultReceiveWait.
	ReceiveWait time.Duration

	// TeardownTimeout bounds teardown after the run context is cancelled.
	TeardownTimeout time.Duration

	// Steps overrides the operating steps. Nil means DefaultSteps.
	Steps []Step

	Preflight Preflight
	Ledger    Ledger
	Events    EventSink
	Metrics   *telemetry.Metrics
	Tracer    *telemetry.Tracer
	Logger    *telemetry.Logger
}

func (o Options) withDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = defaultParallelism
	}
	if o.ReadyPoll.MaxAttempts == 0 {
		o.ReadyPoll = DefaultReadyPoll
	}
	if o.ReVerifyPoll.MaxAttempts == 0 {
		o.ReVerifyPoll = PollPolicy{MaxAttempts: 1}
	}
	if o.TerminationPoll.MaxAttempts == 0 {
		o.TerminationPoll = DefaultTerminationPoll
	}
	if o.TeardownTimeout <= 0 {
		o.TeardownTimeout = defaultTeardownTimeout
	}
	if o.Steps == nil {
		o.Steps = DefaultSteps()
	}
	if o.Logger == nil {
		o.Logger = telemetry.NewNopLogger()
	}
	return o
}

// Orchestrator drives one provision, verify, operate, re-verify, teardown run.
// An Orchestrator owns its Registry and is not reusable across runs.
type Orchestrator struct {
	adapter  Adapter
	spec     RunSpec
	opts     Options
	logger   *telemetry.Logger
	registry *Registry
	verifier *Verifier
	teardown *TeardownCoordinator

	runID     string
	startedAt time.Time

	mu          sync.Mutex
	state       RunState
	results     []OperationResult
	teardownRes []OperationResult
	seq         int
	seen        map[string]Descriptor
	seenOrder   []string
	abortReason string
}

// NewOrchestrator creates an orchestrator for a single run.
func NewOrchestrator(adapter Adapter, spec RunSpec, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	registry := NewRegistry()
	verifier := NewVerifier(adapter, registry, opts.Metrics)
	runID := ulid.Make().String()

	o := &Orchestrator{
		adapter:  adapter,
		spec:     spec,
		opts:     opts,
		logger:   opts.Logger.NewComponentLogger("orchestrator").WithRunID(runID),
		registry: registry,
		verifier: verifier,
		teardown: NewTeardownCoordinator(adapter, verifier, opts.TerminationPoll, opts.Metrics),
		runID:    runID,
		state:    RunStateInit,
		seen:     make(map[string]Descriptor),
	}
	registry.Observe(o.onTransition)
	return o
}

// RunID returns the run identifier.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Registry exposes the run's registry for inspection.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Run executes the full lifecycle and returns the report.
// The error is non-nil only for invariant violations or a second call to Run;
// every per-resource failure is reported as data in the Report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	if o.state != RunStateInit || !o.startedAt.IsZero() {
		o.mu.Unlock()
		return nil, fmt.Errorf("run %s already started", o.runID)
	}
	o.startedAt = time.Now()
	o.mu.Unlock()

	ctx, span := o.startSpan(ctx, "run", attribute.String("run_id", o.runID))
	defer span.End()

	o.opts.Metrics.RecordRunStarted(o.opts.Provider)
	o.saveRun(ctx, nil)
	o.emit(telemetry.EventTypeRunStarted, telemetry.EventLevelInfo, "", "run started", map[string]interface{}{
		"provider": o.opts.Provider,
		"region":   o.spec.Region,
		"kinds":    o.spec.RequestedKinds(),
	})

	fatal := o.execute(ctx)

	report := o.finish(ctx)
	if fatal != nil {
		telemetry.RecordError(span, fatal)
		return report, fatal
	}
	telemetry.RecordSuccess(span)
	return report, nil
}

// execute walks the lifecycle phases. It returns only invariant violations.
func (o *Orchestrator) execute(ctx context.Context) error {
	if !o.preflight(ctx) {
		return nil
	}

	o.setState(RunStateProvisioning)
	ok, err := o.provisionAll(ctx)
	if err != nil {
		o.abort(ctx, "invariant violation during provisioning")
		return err
	}
	if !ok {
		o.abort(ctx, o.failureReason(ctx, "provisioning failed"))
		return nil
	}

	o.setState(RunStateVerifying)
	ok, err = o.verifyAll(ctx)
	if err != nil {
		o.abort(ctx, "invariant violation during verification")
		return err
	}
	if !ok {
		o.abort(ctx, o.failureReason(ctx, "verification failed"))
		return nil
	}

	o.setState(RunStateOperating)
	if err := o.operate(ctx); err != nil {
		o.abort(ctx, "invariant violation while operating")
		return err
	}
	if ctx.Err() != nil {
		o.abort(ctx, o.failureReason(ctx, ""))
		return nil
	}

	o.setState(RunStateReVerifying)
	if err := o.reverify(ctx); err != nil {
		o.abort(ctx, "invariant violation during re-verification")
		return err
	}
	if ctx.Err() != nil {
		o.abort(ctx, o.failureReason(ctx, ""))
		return nil
	}

	o.setState(RunStateTearingDown)
	o.runTeardown(ctx)
	o.setState(RunStateVerifiedTornDown)
	return nil
}

// preflight runs the policy gate. It returns false when the run must not proceed.
func (o *Orchestrator) preflight(ctx context.Context) bool {
	if o.opts.Preflight == nil {
		return true
	}

	start := time.Now()
	warnings, err := o.opts.Preflight.Check(ctx, o.spec)
	for _, w := range warnings {
		o.emit(telemetry.EventTypePolicyViolation, telemetry.EventLevelWarning, "", w, nil)
	}

	res := OperationResult{Step: "preflight", Success: err == nil, Err: err, At: time.Now(), Duration: time.Since(start)}
	if err != nil {
		res.Detail = err.Error()
		o.record(ctx, res)
		o.abort(ctx, "preflight refused the run")
		return false
	}
	res.Detail = fmt.Sprintf("%d warning(s)", len(warnings))
	o.record(ctx, res)
	return true
}

// provisionAll provisions every requested kind concurrently.
func (o *Orchestrator) provisionAll(ctx context.Context) (bool, error) {
	ctx, span := o.startSpan(ctx, "phase.provisioning")
	defer span.End()

	var (
		mu    sync.Mutex
		allOK = true
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallelism)
	for _, kind := range o.spec.RequestedKinds() {
		g.Go(func() error {
			ok, err := o.provisionOne(gctx, kind)
			if !ok {
				mu.Lock()
				allOK = false
				mu.Unlock()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return allOK && ctx.Err() == nil, nil
}

// provisionOne issues the provision call for one kind and registers the descriptor.
func (o *Orchestrator) provisionOne(ctx context.Context, kind Kind) (bool, error) {
	start := time.Now()
	res := OperationResult{Step: "provision_" + string(kind)}

	if err := ctx.Err(); err != nil {
		res.Err = err
		res.Detail = "cancelled before provisioning"
		res.At = time.Now()
		o.record(ctx, res)
		return false, nil
	}

	ctx, span := o.startSpan(ctx, "adapter.provision", attribute.String("kind", string(kind)))
	handle, err := o.callProvision(ctx, kind)
	span.End()
	res.At = time.Now()
	res.Duration = time.Since(start)

	if err == nil && handle.ID == "" {
		err = errNoResourceID
	}
	if err != nil {
		o.opts.Metrics.RecordAdapterError("provision")
		res.Err = &AdapterError{Kind: kind, Op: "provision", Err: err}
		res.Detail = res.Err.Error()
		o.record(ctx, res)
		return false, nil
	}
	if handle.Kind == "" {
		handle.Kind = kind
	}

	d := Descriptor{Kind: kind, ID: handle.ID, Handle: handle, State: StateRequested}
	if err := o.registry.Register(d); err != nil {
		res.Err = err
		res.Detail = err.Error()
		o.record(ctx, res)
		return false, err
	}
	if err := o.registry.Transition(kind, handle.ID, StateProvisioning); err != nil {
		res.Err = err
		res.Detail = err.Error()
		o.record(ctx, res)
		return false, err
	}

	current, _ := o.registry.Get(kind, handle.ID)
	res.Success = true
	res.Detail = "provision requested"
	res.Resource = &current
	o.record(ctx, res)
	return true, nil
}

func (o *Orchestrator) callProvision(ctx context.Context, kind Kind) (Handle, error) {
	o.opts.Metrics.RecordAdapterCall("provision")
	switch kind {
	case KindCompute:
		return o.adapter.ProvisionCompute(ctx, *o.spec.Compute)
	case KindStorage:
		return o.adapter.ProvisionStorage(ctx, *o.spec.Storage)
	case KindQueue:
		return o.adapter.ProvisionQueue(ctx, *o.spec.Queue)
	default:
		return Handle{}, fmt.Errorf("unsupported kind %s", kind)
	}
}

// verifyAll waits for every registered resource to become ready, concurrently.
func (o *Orchestrator) verifyAll(ctx context.Context) (bool, error) {
	ctx, span := o.startSpan(ctx, "phase.verifying")
	defer span.End()

	return o.awaitAll(ctx, StateReady, o.opts.ReadyPoll)
}

// reverify confirms every resource is still live after operating.
func (o *Orchestrator) reverify(ctx context.Context) error {
	ctx, span := o.startSpan(ctx, "phase.reverifying")
	defer span.End()

	_, err := o.awaitAll(ctx, StateReady, o.opts.ReVerifyPoll)
	return err
}

func (o *Orchestrator) awaitAll(ctx context.Context, expected State, policy PollPolicy) (bool, error) {
	var (
		mu    sync.Mutex
		allOK = true
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallelism)
	for _, d := range o.registry.Snapshot() {
		g.Go(func() error {
			res := o.verifier.AwaitState(gctx, d, expected, policy)
			o.record(gctx, res)
			if !res.Success {
				mu.Lock()
				allOK = false
				mu.Unlock()
			}
			if IsInvariant(res.Err) {
				return res.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	return allOK && ctx.Err() == nil, nil
}

// operate runs the operating steps in order, skipping steps whose kind the run
// does not provision. Step failures are recorded, not returned.
func (o *Orchestrator) operate(ctx context.Context) error {
	ctx, span := o.startSpan(ctx, "phase.operating")
	defer span.End()

	requested := make(map[Kind]bool)
	for _, kind := range o.spec.RequestedKinds() {
		requested[kind] = true
	}

	env := StepEnv{Adapter: o.adapter, Spec: o.spec, ReceiveWait: o.opts.ReceiveWait}
	for _, step := range o.opts.Steps {
		if ctx.Err() != nil {
			return nil
		}
		if !requested[step.Kind] {
			o.logger.WithField("step", step.Name).
				WithField("kind", step.Kind).
				Debug("skipping step for a kind this run does not provision")
			continue
		}
		if err := o.runStep(ctx, step, env); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, env StepEnv) error {
	start := time.Now()
	res := OperationResult{Step: step.Name}

	d, ok := o.registry.ByKind(step.Kind)
	if !ok || !(d.State.IsLive()) {
		res.Err = fmt.Errorf("no live %s resource for step %s", step.Kind, step.Name)
		res.Detail = res.Err.Error()
		res.At = time.Now()
		if ok {
			res.Resource = &d
		}
		o.record(ctx, res)
		return nil
	}
	if err := o.registry.Transition(d.Kind, d.ID, StateInUse); err != nil {
		return err
	}
	env.Handle = d.Handle

	ctx, span := o.startSpan(ctx, "step."+step.Name, attribute.String("kind", string(step.Kind)))
	o.opts.Metrics.RecordAdapterCall(step.Name)
	detail, err := step.Run(ctx, env)
	span.End()

	res.At = time.Now()
	res.Duration = time.Since(start)
	current, _ := o.registry.Get(d.Kind, d.ID)
	res.Resource = &current
	if err != nil {
		o.opts.Metrics.RecordAdapterError(step.Name)
		res.Err = &AdapterError{Kind: d.Kind, ID: d.ID, Op: step.Name, Err: err}
		res.Detail = res.Err.Error()
	} else {
		res.Success = true
		res.Detail = detail
	}
	o.record(ctx, res)
	return nil
}

// abort tears down whatever was registered and marks the run aborted.
func (o *Orchestrator) abort(ctx context.Context, reason string) {
	o.mu.Lock()
	o.abortReason = reason
	o.mu.Unlock()

	o.logger.Warnf("aborting run: %s", reason)
	if o.registry.Len() > 0 {
		o.setState(RunStateTearingDown)
		o.runTeardown(ctx)
	}
	o.setState(RunStateAborted)
}

// runTeardown releases every registered resource with a context that survives cancellation.
func (o *Orchestrator) runTeardown(ctx context.Context) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.TeardownTimeout)
	defer cancel()

	tctx, span := o.startSpan(tctx, "phase.tearing_down")
	defer span.End()

	results := o.teardown.TeardownAll(tctx, o.registry)

	o.mu.Lock()
	o.teardownRes = append(o.teardownRes, results...)
	o.mu.Unlock()

	for _, res := range results {
		o.persistResult(tctx, res)
	}
}

func (o *Orchestrator) failureReason(ctx context.Context, fallback string) string {
	if err := ctx.Err(); err != nil {
		return "run cancelled: " + err.Error()
	}
	return fallback
}

// finish builds the report and persists the terminal run record.
func (o *Orchestrator) finish(ctx context.Context) *Report {
	o.mu.Lock()
	report := &Report{
		RunID:       o.runID,
		State:       o.state,
		StartedAt:   o.startedAt,
		CompletedAt: time.Now(),
		Results:     append([]OperationResult(nil), o.results...),
		Teardown:    append([]OperationResult(nil), o.teardownRes...),
		AbortReason: o.abortReason,
		TraceID:     telemetry.TraceID(ctx),
	}
	for _, key := range o.seenOrder {
		report.Resources = append(report.Resources, o.seen[key])
	}
	o.mu.Unlock()

	pctx := context.WithoutCancel(ctx)
	o.saveRun(pctx, report)
	o.opts.Metrics.RecordRunCompleted(string(report.State), report.Duration())

	level := telemetry.EventLevelInfo
	eventType := telemetry.EventTypeRunCompleted
	if report.ExitCode() != 0 {
		level = telemetry.EventLevelError
		eventType = telemetry.EventTypeRunFailed
	}
	o.emit(eventType, level, "", "run finished", map[string]interface{}{
		"state":             report.State,
		"exit_code":         report.ExitCode(),
		"failed_results":    len(report.FailedResults()),
		"teardown_failures": report.TeardownFailures(),
		"abort_reason":      report.AbortReason,
		"trace_id":          report.TraceID,
		"duration_seconds":  report.Duration().Seconds(),
	})
	return report
}

// setState moves the run to a new phase. Terminal states are final.
func (o *Orchestrator) setState(next RunState) {
	o.mu.Lock()
	prev := o.state
	if prev.IsTerminal() || prev == next {
		o.mu.Unlock()
		return
	}
	o.state = next
	o.mu.Unlock()

	o.logger.Debugf("run state %s -> %s", prev, next)
	o.emit(telemetry.EventTypeRunStateChanged, telemetry.EventLevelInfo, "", "run state changed", map[string]interface{}{
		"from": prev,
		"to":   next,
	})
	if !next.IsTerminal() {
		o.saveRun(context.Background(), nil)
	}
}

// record stores a non-teardown result and fans it out.
func (o *Orchestrator) record(ctx context.Context, res OperationResult) {
	if res.At.IsZero() {
		res.At = time.Now()
	}
	o.mu.Lock()
	o.results = append(o.results, res)
	o.mu.Unlock()

	kind := ""
	if res.Resource != nil {
		kind = string(res.Resource.Kind)
	}
	o.opts.Metrics.RecordOperation(res.Step, kind, res.Success, res.Duration)
	o.persistResult(ctx, res)
}

// persistResult writes a result to the ledger and publishes it as an event.
func (o *Orchestrator) persistResult(ctx context.Context, res OperationResult) {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.mu.Unlock()

	if o.opts.Ledger != nil {
		if err := o.opts.Ledger.SaveResult(context.WithoutCancel(ctx), o.runID, seq, res); err != nil {
			o.logger.WithError(err).Warn("failed to persist operation result")
		}
	}

	data := map[string]interface{}{
		"step":    res.Step,
		"success": res.Success,
		"detail":  res.Detail,
		"seq":     seq,
	}
	resourceID := ""
	if res.Resource != nil {
		data["kind"] = res.Resource.Kind
		data["state"] = res.Resource.State
		resourceID = res.Resource.ID
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	eventType, level := telemetry.EventTypeOperationSucceeded, telemetry.EventLevelInfo
	if !res.Success {
		eventType, level = telemetry.EventTypeOperationFailed, telemetry.EventLevelError
	}
	o.emit(eventType, level, resourceID, res.Step, data)
}

// onTransition is the registry observer: it tracks every descriptor ever seen.
func (o *Orchestrator) onTransition(d Descriptor, from State) {
	o.mu.Lock()
	key := d.Key()
	if _, ok := o.seen[key]; !ok {
		o.seenOrder = append(o.seenOrder, key)
	}
	o.seen[key] = d
	o.mu.Unlock()

	o.opts.Metrics.TrackResourceTransition(string(d.Kind), string(from), string(d.State))

	if o.opts.Ledger != nil {
		if err := o.opts.Ledger.SaveDescriptor(context.Background(), o.runID, d); err != nil {
			o.logger.WithError(err).Warn("failed to persist descriptor")
		}
	}
	o.emit(telemetry.EventTypeResourceStateChanged, telemetry.EventLevelInfo, d.ID, "resource state changed", map[string]interface{}{
		"kind": d.Kind,
		"from": from,
		"to":   d.State,
	})
}

func (o *Orchestrator) saveRun(ctx context.Context, report *Report) {
	if o.opts.Ledger == nil {
		return
	}

	o.mu.Lock()
	rec := &RunRecord{
		ID:          o.runID,
		State:       o.state,
		Provider:    o.opts.Provider,
		Region:      o.spec.Region,
		StartedAt:   o.startedAt,
		AbortReason: o.abortReason,
		TraceID:     telemetry.TraceID(ctx),
	}
	o.mu.Unlock()

	if report != nil {
		completed := report.CompletedAt
		code := report.ExitCode()
		rec.State = report.State
		rec.CompletedAt = &completed
		rec.ExitCode = &code
	}
	if err := o.opts.Ledger.SaveRun(ctx, rec); err != nil {
		o.logger.WithError(err).Warn("failed to persist run")
	}
}

func (o *Orchestrator) emit(eventType, level, resourceID, message string, data map[string]interface{}) {
	if o.opts.Events == nil {
		return
	}
	err := o.opts.Events.Publish(telemetry.Event{
		Type:       eventType,
		Source:     "orchestrator",
		RunID:      o.runID,
		ResourceID: resourceID,
		Message:    message,
		Level:      level,
		Data:       data,
	})
	if err != nil && !errors.Is(err, telemetry.ErrPublisherStopped) {
		o.logger.WithError(err).Debug("event dropped")
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o.opts.Tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return o.opts.Tracer.StartSpan(ctx, name, attrs...)
}
