package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the relaybus tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("relaybus")

// SpanManager handles trace span lifecycle around dispatch and transact.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPublishSpan starts a span for one publish call, covering envelope
	// construction through dispatch submission.
	StartPublishSpan(ctx context.Context, eventType string, correlationID string) (context.Context, trace.Span)

	// StartHandlerSpan starts a span for a single handler invocation.
	// The handler span should be a child of the publish or transact span.
	StartHandlerSpan(ctx context.Context, eventType, handlerID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPublishSpan starts a span covering one publish call.
func (m *otelSpanManager) StartPublishSpan(ctx context.Context, eventType, correlationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "relaybus.publish",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("correlation.id", correlationID),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartHandlerSpan starts a span for a single handler invocation.
func (m *otelSpanManager) StartHandlerSpan(ctx context.Context, eventType, handlerID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "relaybus.handler."+eventType,
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("handler.id", handlerID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	endSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	addSpanEvent(ctx, name, attrs...)
}

func endSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func addSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Convenience functions that operate on the global tracer.
// Useful for simple cases where the interface indirection isn't needed.

// StartPublishSpan starts a span covering one publish call, using the global tracer.
func StartPublishSpan(ctx context.Context, eventType, correlationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "relaybus.publish",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("correlation.id", correlationID),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartHandlerSpan starts a span for a single handler invocation, using the global tracer.
func StartHandlerSpan(ctx context.Context, eventType, handlerID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "relaybus.handler."+eventType,
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("handler.id", handlerID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	endSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	addSpanEvent(ctx, name, attrs...)
}
