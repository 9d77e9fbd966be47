package telemetry

import (
	"context"
	"errors"
	"net/http"
)

// Telemetry bundles logging, tracing, metrics, and events for one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config

	kafka         *KafkaSink
	metricsServer *http.Server
}

// NewTelemetry creates a telemetry bundle from configuration.
// Events are always logged; a Kafka sink is attached when configured.
func NewTelemetry(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newTelemetry(ctx, cfg, logger)
}

func newTelemetry(ctx context.Context, cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	events.Subscribe(NewLogSubscriber(logger.NewComponentLogger("events")), FilterByLevel(EventLevelWarning))

	t := &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}

	if cfg.Events.Enabled && cfg.Events.Kafka.Enabled() {
		sink, err := NewKafkaSink(ctx, cfg.Events.Kafka, logger)
		if err != nil {
			_ = tracer.Shutdown(ctx)
			return nil, err
		}
		t.kafka = sink
		events.Subscribe(sink.Subscriber(), nil)
	}

	return t, nil
}

// WithContext attaches the bundle's logger to ctx, so code that only sees
// the context logs through FromContext.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// StartMetricsServer serves /metrics on the configured address, if any.
func (t *Telemetry) StartMetricsServer() {
	t.metricsServer = t.Metrics.StartMetricsServer(t.Logger)
}

// Shutdown drains events, then stops the Kafka sink, tracer, and metrics server.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Events.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if t.kafka != nil {
		t.kafka.Close()
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if t.metricsServer != nil {
		if err := t.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
