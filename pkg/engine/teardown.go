package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// TeardownCoordinator releases every registered resource in reverse creation order.
// A failure on one resource never stops the others from being attempted.
type TeardownCoordinator struct {
	adapter  Adapter
	verifier *Verifier
	confirm  PollPolicy
	metrics  *telemetry.Metrics
}

// NewTeardownCoordinator creates a coordinator. confirm bounds the post-terminate
// Describe polling that must observe StateTerminated before a descriptor is removed.
func NewTeardownCoordinator(adapter Adapter, verifier *Verifier, confirm PollPolicy, metrics *telemetry.Metrics) *TeardownCoordinator {
	return &TeardownCoordinator{
		adapter:  adapter,
		verifier: verifier,
		confirm:  confirm,
		metrics:  metrics,
	}
}

// TeardownAll terminates and confirms each descriptor, last-created first.
// Confirmed resources are removed from the registry; unconfirmed ones stay as failed.
// The returned slice has one result per descriptor attempted.
func (c *TeardownCoordinator) TeardownAll(ctx context.Context, registry *Registry) []OperationResult {
	descriptors := registry.Snapshot()
	results := make([]OperationResult, 0, len(descriptors))

	for i := len(descriptors) - 1; i >= 0; i-- {
		results = append(results, c.teardownOne(ctx, registry, descriptors[i]))
	}

	return results
}

// teardownOne runs terminate then confirm for a single resource.
func (c *TeardownCoordinator) teardownOne(ctx context.Context, registry *Registry, d Descriptor) OperationResult {
	start := time.Now()
	result := OperationResult{Step: "terminate"}
	finish := func() OperationResult {
		result.At = time.Now()
		result.Duration = time.Since(start)
		if latest, ok := registry.Get(d.Kind, d.ID); ok {
			result.Resource = &latest
		} else if result.Resource == nil {
			gone := d
			gone.State = StateTerminated
			result.Resource = &gone
		}
		c.metrics.RecordOperation(result.Step, string(d.Kind), result.Success, result.Duration)
		return result
	}

	if err := registry.Transition(d.Kind, d.ID, StateTerminating); err != nil {
		result.Err = err
		result.Detail = err.Error()
		return finish()
	}

	c.metrics.RecordAdapterCall("terminate")
	if err := c.adapter.Terminate(ctx, d.Kind, d.ID); err != nil {
		c.metrics.RecordAdapterError("terminate")
		result.Err = &AdapterError{Kind: d.Kind, ID: d.ID, Op: "terminate", Err: err}
		result.Detail = result.Err.Error()
		_ = registry.Transition(d.Kind, d.ID, StateFailed)
		return finish()
	}

	current, _ := registry.Get(d.Kind, d.ID)
	confirm := c.verifier.AwaitState(ctx, current, StateTerminated, c.confirm)
	if !confirm.Success {
		result.Err = confirm.Err
		result.Detail = fmt.Sprintf("termination not confirmed: %s", confirm.Detail)
		return finish()
	}

	final, _ := registry.Get(d.Kind, d.ID)
	result.Resource = &final
	registry.Remove(d.Kind, d.ID)
	result.Success = true
	result.Detail = "terminated and confirmed"
	return finish()
}
