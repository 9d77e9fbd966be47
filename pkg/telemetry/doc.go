// Package telemetry provides logging, tracing, metrics, and lifecycle events
// for cloudcycle runs.
//
// # Components
//
//  1. Logger - zerolog with run and resource scoped child loggers
//  2. Tracer - OpenTelemetry spans exported via OTLP/gRPC or stdout
//  3. Metrics - a private Prometheus registry with run, operation, and adapter series
//  4. EventPublisher - ordered fan-out of run events to subscribers
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("orchestrator").WithRunID(runID)
//	logger.Info("run started")
//
// Code that only receives a context logs through FromContext once the
// context has passed through tel.WithContext; without it the logger is a no-op.
//
// Every *Metrics method is safe to call on a nil receiver, so callers may
// pass metrics through as an optional dependency.
//
// # Events
//
// Subscribers are invoked one event at a time in publish order, either on the
// publishing goroutine or, with EnableAsync, on a single delivery goroutine.
// Shutdown stops intake and waits for queued events to drain. When
// Events.Kafka names brokers and a topic, each event is also produced to
// Kafka as JSON keyed by run ID.
//
// # Metrics
//
//   - cloudcycle_runs_started_total{provider}
//   - cloudcycle_runs_completed_total{state}
//   - cloudcycle_run_duration_seconds{state}
//   - cloudcycle_operations_total{step,kind,success}
//   - cloudcycle_adapter_calls_total{operation}
//   - cloudcycle_adapter_errors_total{operation}
//   - cloudcycle_verification_polls_total{kind,expected}
//   - cloudcycle_resources{kind,state}
//   - cloudcycle_active_runs
package telemetry
