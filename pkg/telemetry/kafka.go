package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const kafkaProduceTimeout = 10 * time.Second

// KafkaSink publishes lifecycle events as JSON records keyed by run ID.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *Logger
}

// NewKafkaSink connects to the brokers and makes sure the topic exists.
func NewKafkaSink(ctx context.Context, cfg KafkaConfig, logger *Logger) (*KafkaSink, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka sink requires brokers and a topic")
	}
	if logger == nil {
		logger = NewNopLogger()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	return &KafkaSink{
		client: client,
		topic:  cfg.Topic,
		logger: logger.NewComponentLogger("kafka_sink"),
	}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish writes one event synchronously.
func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.RunID),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce event %s: %w", event.ID, err)
	}
	return nil
}

// Subscriber adapts the sink to an EventPublisher subscription.
// Produce failures are logged and do not affect the run.
func (s *KafkaSink) Subscriber() EventSubscriber {
	return func(event Event) {
		ctx, cancel := context.WithTimeout(context.Background(), kafkaProduceTimeout)
		defer cancel()
		if err := s.Publish(ctx, event); err != nil {
			s.logger.WithError(err).Warn("failed to publish event to kafka")
		}
	}
}

// Close flushes and closes the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
