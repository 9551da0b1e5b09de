package relaybus

import (
	"context"
	"encoding/json"
	"time"

	relerrors "github.com/relaybus/relaybus/pkg/relaybus/errors"
	"github.com/relaybus/relaybus/pkg/relaybus/observability"
	"github.com/relaybus/relaybus/pkg/relaybus/txstore"
)

const txWorkerPollInterval = 50 * time.Millisecond

// runTxWorker is the background loop driving pending handler rows to
// terminal states. One instance runs per Bus with a configured store, for
// the lifetime of the bus.
func (b *Bus) runTxWorker() {
	defer close(b.workerDone)

	lastCleanup := time.Now()

	for {
		select {
		case <-b.workerStop:
			return
		default:
		}

		b.pollOnce()
		lastCleanup = b.maybeRunCleanup(lastCleanup)

		select {
		case <-b.workerStop:
			return
		case <-time.After(txWorkerPollInterval):
		}
	}
}

func (b *Bus) pollOnce() {
	ctx := context.Background()
	now := time.Now()

	rows, err := b.store.QueryPendingHandlers(ctx, now)
	if err != nil {
		observability.LogTxWorkerFailed(b.opts.Logger, err)
		return
	}

	for _, row := range rows {
		update := b.processHandler(ctx, row)
		if err := b.store.UpdateHandler(ctx, update, time.Now()); err != nil {
			observability.LogTxWorkerFailed(b.opts.Logger, err)
			continue
		}

		status, err := b.store.TxStatus(ctx, row.TxID)
		if err != nil {
			observability.LogTxWorkerFailed(b.opts.Logger, err)
			continue
		}

		if status == txstore.TxOK || status == txstore.TxFailed {
			if err := b.store.UpdateTx(ctx, row.TxID, status, time.Now()); err != nil {
				observability.LogTxWorkerFailed(b.opts.Logger, err)
			}
			result := CompletionResult{TxID: row.TxID, OK: status == txstore.TxOK}
			if status == txstore.TxFailed {
				result.Error = newBusError(ErrKindHandlerException, "handler-failed")
			}
			dur := b.completion.complete(row.TxID, result)
			b.opts.Metrics.RecordTransact(ctx, result.OK, dur)
		}
	}
}

// handlerOutcome is process-handler's result before the retry/backoff
// policy turns it into a persisted HandlerUpdate. Whether a failure is
// retryable is not stored here: applyRetryPolicy derives it from err via
// errors.IsRetryable, so every call site only has to classify via the
// error type it constructs.
type handlerOutcome struct {
	status txstore.HandlerStatus
	err    error
}

// processHandler reconstructs the envelope from stored fields, resolves the
// listener by handler-id against the current snapshot, and invokes it under
// a deadline.
func (b *Bus) processHandler(ctx context.Context, row txstore.PendingHandler) txstore.HandlerUpdate {
	outcome := b.invokeForRow(ctx, row)
	return b.applyRetryPolicy(row, outcome)
}

func (b *Bus) invokeForRow(ctx context.Context, row txstore.PendingHandler) handlerOutcome {
	entry, ok := b.listeners.byHandlerID(row.EventType, row.HandlerID)
	if !ok {
		err := &relerrors.HandlerMissingError{HandlerID: row.HandlerID, EventType: row.EventType}
		observability.LogHandlerFailed(b.opts.Logger, row.HandlerID, row.TxID, err)
		return handlerOutcome{status: txstore.HandlerFailed, err: err}
	}

	var payload any
	if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
		payload = row.Payload
	}

	if entry.Schema != nil {
		if err := entry.Schema.Validate(payload); err != nil {
			schemaErr := &relerrors.SchemaValidationError{EventType: row.EventType, SchemaVersion: row.SchemaVersion, Message: err.Error()}
			observability.LogHandlerFailed(b.opts.Logger, row.HandlerID, row.TxID, schemaErr)
			return handlerOutcome{status: txstore.HandlerFailed, err: schemaErr}
		}
	}

	env := &Envelope{
		messageID:     row.MessageID,
		correlationID: row.CorrelationID,
		messageType:   row.EventType,
		module:        row.Module,
		schemaVersion: row.SchemaVersion,
		payload:       payload,
	}

	return b.invokeWithTimeout(ctx, entry, env, row)
}

// invokeWithTimeout races the handler call against tx-handler-timeout. On
// deadline the outcome is classified timeout regardless of any value the
// handler later produces.
func (b *Bus) invokeWithTimeout(ctx context.Context, entry *ListenerEntry, env *Envelope, row txstore.PendingHandler) handlerOutcome {
	deadline := b.opts.TxHandlerTimeout
	if deadline <= 0 {
		deadline = 10 * time.Second
	}

	spanCtx, span := b.opts.Tracing.StartHandlerSpan(ctx, row.EventType, entry.HandlerID)
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(spanCtx, deadline)
	defer cancel()

	resultCh := make(chan handlerOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := &relerrors.HandlerFailedError{HandlerID: entry.HandlerID, Err: panicAsError(r)}
				resultCh <- handlerOutcome{status: txstore.HandlerFailed, err: err}
			}
		}()

		ok, err := entry.Handler(timeoutCtx, b, env)
		if err != nil {
			resultCh <- handlerOutcome{status: txstore.HandlerFailed, err: &relerrors.HandlerFailedError{HandlerID: entry.HandlerID, Err: err}}
			return
		}
		if !ok {
			resultCh <- handlerOutcome{status: txstore.HandlerFailed, err: &relerrors.HandlerFailedError{HandlerID: entry.HandlerID, Err: newBusError(ErrKindHandlerReturnedFalse, "handler returned false")}}
			return
		}
		resultCh <- handlerOutcome{status: txstore.HandlerOK}
	}()

	select {
	case outcome := <-resultCh:
		duration := time.Since(start)
		b.opts.Metrics.RecordHandlerExecution(ctx, row.EventType, entry.HandlerID, duration, outcome.err)
		b.opts.Tracing.EndSpanWithError(span, outcome.err)
		if outcome.err != nil {
			observability.LogEventDispatchFailed(b.opts.Logger, row.EventType, entry.HandlerID, outcome.err, row.RetryCount+1)
		} else {
			observability.LogEventDispatched(b.opts.Logger, row.EventType, entry.HandlerID, float64(duration.Milliseconds()))
		}
		return outcome
	case <-timeoutCtx.Done():
		err := &relerrors.HandlerTimeoutError{HandlerID: entry.HandlerID, Timeout: deadline.String()}
		duration := time.Since(start)
		b.opts.Metrics.RecordHandlerExecution(ctx, row.EventType, entry.HandlerID, duration, err)
		b.opts.Tracing.EndSpanWithError(span, err)
		observability.LogEventDispatchFailed(b.opts.Logger, row.EventType, entry.HandlerID, err, row.RetryCount+1)
		return handlerOutcome{status: txstore.HandlerTimeout, err: err}
	}
}

func panicAsError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r}
}

// applyRetryPolicy computes the next handler-row state from an outcome:
// retry count, terminal status, and next-attempt time.
func (b *Bus) applyRetryPolicy(row txstore.PendingHandler, outcome handlerOutcome) txstore.HandlerUpdate {
	maxRetries := b.opts.HandlerMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := b.opts.HandlerBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	retryable := relerrors.IsRetryable(outcome.err)

	nextRetry := row.RetryCount + 1
	exhausted := retryable && nextRetry >= maxRetries

	var finalStatus txstore.HandlerStatus
	switch {
	case outcome.status == txstore.HandlerOK:
		finalStatus = txstore.HandlerOK
	case exhausted:
		finalStatus = outcome.status
	case retryable:
		finalStatus = txstore.HandlerPending
	default:
		finalStatus = outcome.status
	}

	storedRetryCount := row.RetryCount
	if outcome.status != txstore.HandlerOK {
		storedRetryCount = nextRetry
	}

	now := time.Now()
	nextAt := now
	if retryable && !exhausted {
		nextAt = now.Add(backoff)
	}

	var lastError string
	if outcome.err != nil {
		lastError = outcome.err.Error()
	}

	if finalStatus == txstore.HandlerFailed && outcome.err != nil {
		observability.LogHandlerFailed(b.opts.Logger, row.HandlerID, row.TxID, outcome.err)
	}
	if exhausted {
		observability.LogEventDispatchGiveUp(b.opts.Logger, row.EventType, row.HandlerID, row.TxID, nextRetry)
	}

	return txstore.HandlerUpdate{
		HandlerRowID: row.HandlerRowID,
		Status:       finalStatus,
		RetryCount:   storedRetryCount,
		LastError:    lastError,
		NextAt:       nextAt.UnixMilli(),
	}
}

// backoffForAttempt grows cfg's initial backoff by its BackoffFactor once per
// prior attempt, capped at MaxBackoff, mirroring the schedule
// errors.WithRetryContext applies within a single call.
func backoffForAttempt(cfg relerrors.RetryConfig, priorAttempts int) time.Duration {
	d := cfg.InitialBackoff
	for i := 0; i < priorAttempts; i++ {
		d = time.Duration(float64(d) * cfg.BackoffFactor)
		if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return d
}

// maybeRunCleanup invokes the store's cleanup pass when both tx-retention
// and tx-cleanup-interval are configured and the interval has elapsed.
// Returns the timestamp of the last cleanup attempt.
func (b *Bus) maybeRunCleanup(lastCleanup time.Time) time.Time {
	if b.opts.TxRetention <= 0 || b.opts.TxCleanupInterval <= 0 {
		return lastCleanup
	}
	if time.Since(lastCleanup) < b.opts.TxCleanupInterval {
		return lastCleanup
	}

	removed, err := b.store.Cleanup(context.Background(), time.Now(), b.opts.TxRetention)
	if err != nil {
		observability.LogTxCleanupError(b.opts.Logger, err)
	} else {
		observability.LogTxCleanup(b.opts.Logger, removed)
	}
	return time.Now()
}
