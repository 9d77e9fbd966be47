//go:build integration

package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestKafkaSinkPublishesEvents(t *testing.T) {
	ctx := context.Background()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v23.3.3")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	cfg := KafkaConfig{Brokers: []string{broker}, Topic: "cloudcycle-events"}
	sink, err := NewKafkaSink(ctx, cfg, NewNopLogger())
	require.NoError(t, err)
	defer sink.Close()

	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	require.NoError(t, err)
	ep.Subscribe(sink.Subscriber(), nil)

	require.NoError(t, ep.Publish(Event{Type: EventTypeRunStarted, RunID: "run-1", Message: "run started"}))
	require.NoError(t, ep.Publish(Event{Type: EventTypeRunCompleted, RunID: "run-1", Message: "run finished"}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var got []Event
	for len(got) < 2 {
		fetches := consumer.PollFetches(pollCtx)
		require.NoError(t, pollCtx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			var e Event
			require.NoError(t, json.Unmarshal(r.Value, &e))
			require.Equal(t, "run-1", string(r.Key))
			got = append(got, e)
		})
	}

	require.Equal(t, EventTypeRunStarted, got[0].Type)
	require.Equal(t, EventTypeRunCompleted, got[1].Type)
}
