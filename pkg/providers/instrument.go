package providers

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// Instrument wraps an adapter so every call gets a span and a debug log line.
// The log line goes to the logger carried by the call's context.
// A nil tracer disables spans.
func Instrument(adapter engine.Adapter, provider string, tracer *telemetry.Tracer) engine.Adapter {
	return &instrumented{
		next:     adapter,
		provider: provider,
		tracer:   tracer,
	}
}

type instrumented struct {
	next     engine.Adapter
	provider string
	tracer   *telemetry.Tracer
}

var _ engine.Adapter = (*instrumented)(nil)

// call runs fn inside an adapter span and logs its outcome.
func (a *instrumented) call(ctx context.Context, op string, kind engine.Kind, id string, fn func(context.Context) error) error {
	var span trace.Span
	if a.tracer != nil {
		ctx, span = a.tracer.StartAdapterSpan(ctx, a.provider, op)
		defer span.End()
		span.SetAttributes(
			telemetry.AttrResourceKind.String(string(kind)),
			telemetry.AttrResourceID.String(id),
		)
	}

	start := time.Now()
	err := fn(ctx)

	log := telemetry.FromContext(ctx).
		NewComponentLogger("adapter").
		WithProvider(a.provider).
		WithField("operation", op).
		WithField("duration_ms", time.Since(start).Milliseconds())
	if id != "" {
		log = log.WithResource(string(kind), id)
	}
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		log = log.WithField("trace_id", traceID)
	}

	if err != nil {
		if span != nil {
			telemetry.RecordError(span, err)
		}
		log.WithError(err).Debug("adapter call failed")
		return err
	}
	if span != nil {
		telemetry.RecordSuccess(span)
	}
	log.Debug("adapter call")
	return nil
}

func (a *instrumented) ProvisionCompute(ctx context.Context, spec engine.ComputeSpec) (h engine.Handle, err error) {
	err = a.call(ctx, "provision_compute", engine.KindCompute, "", func(ctx context.Context) error {
		h, err = a.next.ProvisionCompute(ctx, spec)
		return err
	})
	return h, err
}

func (a *instrumented) ProvisionStorage(ctx context.Context, spec engine.StorageSpec) (h engine.Handle, err error) {
	err = a.call(ctx, "provision_storage", engine.KindStorage, spec.Name, func(ctx context.Context) error {
		h, err = a.next.ProvisionStorage(ctx, spec)
		return err
	})
	return h, err
}

func (a *instrumented) ProvisionQueue(ctx context.Context, spec engine.QueueSpec) (h engine.Handle, err error) {
	err = a.call(ctx, "provision_queue", engine.KindQueue, spec.Name, func(ctx context.Context) error {
		h, err = a.next.ProvisionQueue(ctx, spec)
		return err
	})
	return h, err
}

func (a *instrumented) Describe(ctx context.Context, kind engine.Kind, id string) (s engine.State, err error) {
	err = a.call(ctx, "describe", kind, id, func(ctx context.Context) error {
		s, err = a.next.Describe(ctx, kind, id)
		return err
	})
	return s, err
}

func (a *instrumented) SendMessage(ctx context.Context, queue engine.Handle, msg engine.Message) error {
	return a.call(ctx, "send_message", queue.Kind, queue.ID, func(ctx context.Context) error {
		return a.next.SendMessage(ctx, queue, msg)
	})
}

func (a *instrumented) ReceiveMessage(ctx context.Context, queue engine.Handle, wait time.Duration) (m *engine.Message, err error) {
	err = a.call(ctx, "receive_message", queue.Kind, queue.ID, func(ctx context.Context) error {
		m, err = a.next.ReceiveMessage(ctx, queue, wait)
		return err
	})
	return m, err
}

func (a *instrumented) CountMessages(ctx context.Context, queue engine.Handle) (n int, err error) {
	err = a.call(ctx, "count_messages", queue.Kind, queue.ID, func(ctx context.Context) error {
		n, err = a.next.CountMessages(ctx, queue)
		return err
	})
	return n, err
}

func (a *instrumented) UploadObject(ctx context.Context, bucket engine.Handle, localPath, key string) error {
	return a.call(ctx, "upload_object", bucket.Kind, bucket.ID, func(ctx context.Context) error {
		return a.next.UploadObject(ctx, bucket, localPath, key)
	})
}

func (a *instrumented) Terminate(ctx context.Context, kind engine.Kind, id string) error {
	return a.call(ctx, "terminate", kind, id, func(ctx context.Context) error {
		return a.next.Terminate(ctx, kind, id)
	})
}
