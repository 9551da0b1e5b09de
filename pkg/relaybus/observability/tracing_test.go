package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	tracer = otel.Tracer("relaybus")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartPublishSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("creates span with correct name and attributes", func(t *testing.T) {
		ctx := context.Background()
		ctx, span := StartPublishSpan(ctx, "order.created", "corr-123")
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "relaybus.publish", s.Name)

		var eventType, correlationID string
		for _, attr := range s.Attributes {
			switch attr.Key {
			case "event.type":
				eventType = attr.Value.AsString()
			case "correlation.id":
				correlationID = attr.Value.AsString()
			}
		}
		assert.Equal(t, "order.created", eventType)
		assert.Equal(t, "corr-123", correlationID)
		_ = ctx
	})

	t.Run("returns context with span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		newCtx, span := StartPublishSpan(ctx, "test", "corr-456")

		assert.NotEqual(t, ctx, newCtx)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
	})
}

func TestStartHandlerSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("creates span with event type suffix", func(t *testing.T) {
		ctx := context.Background()
		ctx, span := StartHandlerSpan(ctx, "order.created", "h1")
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "relaybus.handler.order.created", s.Name)

		var handlerID string
		for _, attr := range s.Attributes {
			if attr.Key == "handler.id" {
				handlerID = attr.Value.AsString()
			}
		}
		assert.Equal(t, "h1", handlerID)
		_ = ctx
	})

	t.Run("child spans have correct parent", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		ctx, pubSpan := StartPublishSpan(ctx, "order.created", "corr-1")

		ctx, handlerSpan := StartHandlerSpan(ctx, "order.created", "h1")
		handlerSpan.End()

		pubSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		var handlerSpanData *tracetest.SpanStub
		for i := range spans {
			if spans[i].Name == "relaybus.handler.order.created" {
				handlerSpanData = &spans[i]
				break
			}
		}
		require.NotNil(t, handlerSpanData)
		assert.True(t, handlerSpanData.Parent.IsValid())
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("sets OK status for nil error", func(t *testing.T) {
		ctx := context.Background()
		_, span := StartPublishSpan(ctx, "test", "corr-1")

		EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		assert.Equal(t, codes.Ok, spans[0].Status.Code)
		assert.Equal(t, "", spans[0].Status.Description)
	})

	t.Run("sets Error status and records error", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		_, span := StartPublishSpan(ctx, "test", "corr-2")
		testErr := errors.New("handler returned false")

		EndSpanWithError(span, testErr)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "handler returned false", s.Status.Description)

		require.NotEmpty(t, s.Events)
		found := false
		for _, event := range s.Events {
			if event.Name == "exception" {
				found = true
			}
		}
		assert.True(t, found, "expected exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			EndSpanWithError(nil, nil)
		})
		assert.NotPanics(t, func() {
			EndSpanWithError(nil, errors.New("test"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("adds event to current span", func(t *testing.T) {
		ctx := context.Background()
		ctx, span := StartPublishSpan(ctx, "test", "corr-1")

		AddSpanEvent(ctx, "handler_dispatched",
			attribute.String("handler_id", "h1"),
			attribute.Int64("listener_count", 3),
		)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		require.NotEmpty(t, s.Events)

		var found bool
		for _, event := range s.Events {
			if event.Name == "handler_dispatched" {
				found = true
				var handlerID string
				var listenerCount int64
				for _, attr := range event.Attributes {
					switch attr.Key {
					case "handler_id":
						handlerID = attr.Value.AsString()
					case "listener_count":
						listenerCount = attr.Value.AsInt64()
					}
				}
				assert.Equal(t, "h1", handlerID)
				assert.Equal(t, int64(3), listenerCount)
			}
		}
		assert.True(t, found, "expected to find handler_dispatched event")
	})

	t.Run("no panic with no current span", func(t *testing.T) {
		ctx := context.Background()
		assert.NotPanics(t, func() {
			AddSpanEvent(ctx, "test_event")
		})
	})
}

func TestSpanManager_Interface(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	require.NotNil(t, sm)

	t.Run("StartPublishSpan via interface", func(t *testing.T) {
		ctx := context.Background()
		ctx, span := sm.StartPublishSpan(ctx, "interface.event", "corr-if")
		require.NotNil(t, span)

		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.NotEmpty(t, spans)
		_ = ctx
	})

	t.Run("StartHandlerSpan via interface", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		ctx, span := sm.StartHandlerSpan(ctx, "interface.event", "h-if")
		require.NotNil(t, span)

		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.NotEmpty(t, spans)
		assert.Equal(t, "relaybus.handler.interface.event", spans[0].Name)
		_ = ctx
	})

	t.Run("AddSpanEvent via interface", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		ctx, span := sm.StartPublishSpan(ctx, "test", "corr-1")

		sm.AddSpanEvent(ctx, "custom_event", attribute.String("key", "value"))

		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.NotEmpty(t, spans)
		require.NotEmpty(t, spans[0].Events)
	})
}

func TestOtelSpanManager_EndSpanWithError_Scenarios(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := &otelSpanManager{}

	t.Run("wrapped error message is preserved", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartPublishSpan(ctx, "test", "corr-1")

		wrappedErr := errors.New("wrapped: inner error")
		sm.EndSpanWithError(span, wrappedErr)

		spans := exporter.GetSpans()
		require.NotEmpty(t, spans)
		assert.Contains(t, spans[0].Status.Description, "wrapped: inner error")
	})
}
