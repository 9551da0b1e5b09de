package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records relaybus dispatch and transact metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordHandlerExecution records a single handler invocation's duration and error status.
	RecordHandlerExecution(ctx context.Context, eventType, handlerID string, duration time.Duration, err error)

	// RecordTransact records a transact call's completion (the tx reached ok or failed).
	RecordTransact(ctx context.Context, success bool, duration time.Duration)

	// RecordTxPayloadSize records the serialized size of a persisted message payload.
	RecordTxPayloadSize(ctx context.Context, eventType string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	handlerExecutions metric.Int64Counter
	handlerLatency    metric.Float64Histogram
	handlerErrors     metric.Int64Counter
	transactCount     metric.Int64Counter
	transactLatency   metric.Float64Histogram
	txPayloadSize     metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("relaybus")

	handlerExecutions, err := meter.Int64Counter("relaybus.handler.executions",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("relaybus.handler.latency_ms",
		metric.WithDescription("Handler invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	handlerErrors, err := meter.Int64Counter("relaybus.handler.errors",
		metric.WithDescription("Number of handler invocations that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	transactCount, err := meter.Int64Counter("relaybus.transact.count",
		metric.WithDescription("Number of transact calls reaching a final status"),
	)
	if err != nil {
		return nil, err
	}

	transactLatency, err := meter.Float64Histogram("relaybus.transact.latency_ms",
		metric.WithDescription("Transact completion latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	txPayloadSize, err := meter.Int64Histogram("relaybus.tx.payload_size_bytes",
		metric.WithDescription("Serialized size of a persisted message payload"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		handlerExecutions: handlerExecutions,
		handlerLatency:    handlerLatency,
		handlerErrors:     handlerErrors,
		transactCount:     transactCount,
		transactLatency:   transactLatency,
		txPayloadSize:     txPayloadSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordHandlerExecution records a handler invocation.
func (m *otelMetrics) RecordHandlerExecution(ctx context.Context, eventType, handlerID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
		attribute.String("handler_id", handlerID),
	}

	m.handlerExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.handlerLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.handlerErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordTransact records a transact call's completion.
func (m *otelMetrics) RecordTransact(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.transactCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.transactLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordTxPayloadSize records a persisted message payload's serialized size.
func (m *otelMetrics) RecordTxPayloadSize(ctx context.Context, eventType string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
	}
	m.txPayloadSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}
