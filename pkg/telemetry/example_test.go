package telemetry_test

import (
	"context"
	"fmt"

	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// Example_eventPublishing shows ordered synchronous delivery.
func Example_eventPublishing() {
	events, _ := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer events.Shutdown(context.Background())

	events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("%s %s\n", event.Type, event.Message)
	}, telemetry.FilterByRunID("run-1"))

	_ = events.Publish(telemetry.Event{Type: telemetry.EventTypeRunStarted, RunID: "run-1", Message: "run started"})
	_ = events.Publish(telemetry.Event{Type: telemetry.EventTypeRunStarted, RunID: "run-2", Message: "other run"})
	_ = events.Publish(telemetry.Event{Type: telemetry.EventTypeRunCompleted, RunID: "run-1", Message: "run finished"})

	// Output:
	// run.started run started
	// run.completed run finished
}

// Example_nilMetrics shows that metrics are optional.
func Example_nilMetrics() {
	var m *telemetry.Metrics
	m.RecordRunStarted("memory")
	m.RecordAdapterCall("provision")

	fmt.Println("no-op")
	// Output: no-op
}
