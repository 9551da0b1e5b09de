// Package observability provides production-grade observability features
// for relaybus: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib), with an optional zerolog adapter
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds relaybus context to a logger.
// Returns a new logger with correlation_id, event_type, and attempt fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "corr-123", "order.created", 1)
//	enriched.Info("dispatching") // includes correlation_id, event_type, attempt
func EnrichLogger(logger *slog.Logger, correlationID, eventType string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("correlation_id", correlationID),
		slog.String("event_type", eventType),
		slog.Int("attempt", attempt),
	)
}

// LogEventPublished logs a successful publish call.
func LogEventPublished(logger *slog.Logger, eventType, messageID string, listenerCount int) {
	if logger == nil {
		return
	}
	logger.Info("event-published",
		slog.String("event_type", eventType),
		slog.String("message_id", messageID),
		slog.Int("listener_count", listenerCount),
	)
}

// LogEventPersisted logs a durable transact call's initial write.
func LogEventPersisted(logger *slog.Logger, eventType, txID string, handlerCount int) {
	if logger == nil {
		return
	}
	logger.Info("event-persisted",
		slog.String("event_type", eventType),
		slog.String("tx_id", txID),
		slog.Int("handler_count", handlerCount),
	)
}

// LogEventDispatched logs a single handler invocation's completion.
func LogEventDispatched(logger *slog.Logger, eventType, handlerID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event-dispatched",
		slog.String("event_type", eventType),
		slog.String("handler_id", handlerID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEventDispatchFailed logs a handler invocation that returned an error or false.
func LogEventDispatchFailed(logger *slog.Logger, eventType, handlerID string, err error, attempt int) {
	if logger == nil {
		return
	}
	logger.Warn("event-dispatch-failed",
		slog.String("event_type", eventType),
		slog.String("handler_id", handlerID),
		slog.String("error", err.Error()),
		slog.Int("attempt", attempt),
	)
}

// LogEventDispatchGiveUp logs a handler row exhausting its retry budget.
func LogEventDispatchGiveUp(logger *slog.Logger, eventType, handlerID, txID string, attempts int) {
	if logger == nil {
		return
	}
	logger.Error("event-dispatch-give-up",
		slog.String("event_type", eventType),
		slog.String("handler_id", handlerID),
		slog.String("tx_id", txID),
		slog.Int("attempts", attempts),
	)
}

// LogPublishSchemaMissing logs a publish call for which no schema is registered.
func LogPublishSchemaMissing(logger *slog.Logger, eventType, schemaVersion string) {
	if logger == nil {
		return
	}
	logger.Warn("publish-schema-missing",
		slog.String("event_type", eventType),
		slog.String("schema_version", schemaVersion),
	)
}

// LogPublishSchemaValidationFailed logs a publish call whose payload failed validation.
func LogPublishSchemaValidationFailed(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("publish-schema-validation-failed",
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogSchemaValidationFailed logs a payload rejected by schema validation: a
// transact event failing the registry, or a publish skipped by a
// subscriber's own schema.
func LogSchemaValidationFailed(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("schema-validation-failed",
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogHandlerFailed logs a failed handler: a publish-path handler that failed
// or panicked (txID is empty), or a tx handler row that failed.
func LogHandlerFailed(logger *slog.Logger, handlerID, txID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler-failed",
		slog.String("handler_id", handlerID),
		slog.String("tx_id", txID),
		slog.String("error", err.Error()),
	)
}

// LogTxCreated logs a durable tx's initial persisted row.
func LogTxCreated(logger *slog.Logger, txID, eventType string) {
	if logger == nil {
		return
	}
	logger.Info("tx-created",
		slog.String("tx_id", txID),
		slog.String("event_type", eventType),
	)
}

// LogTxWorkerFailed logs a tx worker poll iteration that failed to reach the store.
func LogTxWorkerFailed(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("tx-worker-failed",
		slog.String("error", err.Error()),
	)
}

// LogTxCleanup logs successful removal of completed tx rows.
func LogTxCleanup(logger *slog.Logger, removed int) {
	if logger == nil {
		return
	}
	logger.Debug("tx-cleanup",
		slog.Int("removed", removed),
	)
}

// LogTxCleanupError logs a failed cleanup pass (non-fatal).
func LogTxCleanupError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("tx-cleanup-failed",
		slog.String("error", err.Error()),
	)
}

// LogBufferFull logs a buffered dispatch mode rejecting a task because the queue is full.
func LogBufferFull(logger *slog.Logger, eventType, handlerID string) {
	if logger == nil {
		return
	}
	logger.Warn("buffer-full",
		slog.String("event_type", eventType),
		slog.String("handler_id", handlerID),
	)
}

// LogBusClosing logs the start of a graceful shutdown.
func LogBusClosing(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("bus-closing")
}

// LogBusClosed logs completion of a graceful shutdown.
func LogBusClosed(logger *slog.Logger, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("bus-closed",
		slog.Float64("duration_ms", durationMs),
	)
}

// LogShutdownTimeout logs a shutdown that exceeded its bounded wait.
func LogShutdownTimeout(logger *slog.Logger, waited float64) {
	if logger == nil {
		return
	}
	logger.Warn("shutdown-timeout",
		slog.Float64("waited_ms", waited),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
