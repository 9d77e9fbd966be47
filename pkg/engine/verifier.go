package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// Verifier polls the adapter until a resource reports an expected state.
// Polling is fixed-interval and bounded; it never retries past MaxAttempts.
type Verifier struct {
	adapter  Adapter
	registry *Registry
	metrics  *telemetry.Metrics
}

// NewVerifier creates a verifier over the given adapter and registry.
// metrics may be nil.
func NewVerifier(adapter Adapter, registry *Registry, metrics *telemetry.Metrics) *Verifier {
	return &Verifier{
		adapter:  adapter,
		registry: registry,
		metrics:  metrics,
	}
}

// AwaitState polls Describe until expected is observed or the policy is exhausted.
// On success the descriptor is moved to expected; otherwise it is marked failed.
// It never returns an error: the outcome is the OperationResult.
func (v *Verifier) AwaitState(ctx context.Context, d Descriptor, expected State, policy PollPolicy) OperationResult {
	start := time.Now()
	step := "await_" + string(expected)

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		attempts int
		observed State
		lastErr  error
	)

	poll := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		state, err := v.adapter.Describe(ctx, d.Kind, d.ID)
		v.metrics.RecordVerificationPoll(string(d.Kind), string(expected))
		if err != nil {
			lastErr = &AdapterError{Kind: d.Kind, ID: d.ID, Op: "describe", Err: err}
			return lastErr
		}
		observed = state
		if state == expected {
			return nil
		}
		if unreachable(state, expected) {
			return backoff.Permanent(fmt.Errorf("resource reported %s while awaiting %s", state, expected))
		}
		return fmt.Errorf("resource reported %s", state)
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if maxAttempts > 1 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Interval), uint64(maxAttempts-1))
	}
	err := backoff.Retry(poll, backoff.WithContext(b, ctx))

	current, ok := v.registry.Get(d.Kind, d.ID)
	if !ok {
		current = d
	}

	result := OperationResult{
		Step:     step,
		At:       time.Now(),
		Duration: time.Since(start),
	}

	if err == nil {
		if !satisfies(current.State, expected) {
			if terr := v.registry.Transition(d.Kind, d.ID, expected); terr != nil {
				result.Err = terr
				result.Detail = terr.Error()
				result.Resource = descriptorPtr(v.registry, current)
				return result
			}
		}
		result.Success = true
		result.Detail = fmt.Sprintf("observed %s after %d attempt(s)", expected, attempts)
		result.Resource = descriptorPtr(v.registry, current)
		return result
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Err = err
	case attempts >= maxAttempts:
		result.Err = &VerificationTimeoutError{
			Kind:     d.Kind,
			ID:       d.ID,
			Expected: expected,
			Observed: observed,
			Attempts: attempts,
			Budget:   policy.Budget(),
		}
		if lastErr != nil && observed == "" {
			result.Err = errors.Join(result.Err, lastErr)
		}
	default:
		result.Err = err
	}
	result.Detail = result.Err.Error()

	if terr := v.registry.Transition(d.Kind, d.ID, StateFailed); terr != nil && !current.State.IsTerminal() {
		result.Err = errors.Join(result.Err, terr)
	}
	result.Resource = descriptorPtr(v.registry, current)
	return result
}

// satisfies reports whether current already implies expected.
func satisfies(current, expected State) bool {
	if current == expected {
		return true
	}
	return expected == StateReady && current == StateInUse
}

// unreachable reports whether observed rules out ever seeing expected.
func unreachable(observed, expected State) bool {
	if observed == StateFailed {
		return true
	}
	if expected == StateTerminated || expected == StateTerminating {
		return false
	}
	return observed == StateTerminating || observed == StateTerminated
}

// descriptorPtr returns a pointer to the latest copy of d.
func descriptorPtr(r *Registry, fallback Descriptor) *Descriptor {
	if d, ok := r.Get(fallback.Kind, fallback.ID); ok {
		return &d
	}
	d := fallback
	return &d
}
