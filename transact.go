package relaybus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/relaybus/relaybus/pkg/relaybus/observability"
	"github.com/relaybus/relaybus/pkg/relaybus/txstore"
)

// TransactEvent is one event within a durable batch passed to Transact.
type TransactEvent struct {
	EventType     string
	Payload       any
	Module        string
	SchemaVersion string
}

// Transact persists events atomically and returns a Completion handle
// fulfilled once the tx's aggregate status is terminal: ok when every
// resulting handler row is ok (or there are none), failed as soon as any
// row has failed or timed out.
func (b *Bus) Transact(ctx context.Context, events []TransactEvent) (*Completion, error) {
	if b.closed.Load() {
		return nil, newBusError(ErrKindClosed, "bus is closed")
	}
	if b.store == nil {
		return nil, newBusError(ErrKindNoTxStore, "no tx store configured")
	}
	if len(events) == 0 {
		return nil, newBusError(ErrKindEmptyEvents, "events must be non-empty")
	}

	txID := uuid.NewString()
	now := time.Now()

	inputs := make([]txstore.EventInput, 0, len(events))
	var listenerRefs []txstore.ListenerRef

	for _, ev := range events {
		if ev.Module == "" {
			return nil, newBusError(ErrKindInvalidArgument, "module is required")
		}
		if ev.EventType == "" {
			return nil, newBusError(ErrKindInvalidArgument, "event-type is required")
		}

		schemaVersion := ev.SchemaVersion
		if schemaVersion == "" {
			schemaVersion = "1.0"
		}

		if b.opts.SchemaRegistry != nil {
			if !b.opts.SchemaRegistry.Has(ev.EventType, schemaVersion) {
				observability.LogSchemaValidationFailed(b.opts.Logger, ev.EventType, newBusError(ErrKindMissingSchema, "schema missing"))
				return nil, newBusError(ErrKindMissingSchema, "no schema registered for "+ev.EventType+"/"+schemaVersion)
			}
			if err := b.opts.SchemaRegistry.Validate(ev.EventType, schemaVersion, ev.Payload); err != nil {
				observability.LogSchemaValidationFailed(b.opts.Logger, ev.EventType, err)
				return nil, wrapBusError(ErrKindSchemaValidation, "payload failed schema validation", err)
			}
		}

		payloadBytes, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, wrapBusError(ErrKindInvalidArgument, "payload is not serializable", err)
		}
		b.opts.Metrics.RecordTxPayloadSize(ctx, ev.EventType, int64(len(payloadBytes)))

		env, err := NewEnvelope(ev.EventType, ev.Module, ev.Payload, WithSchemaVersion(schemaVersion))
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, txstore.EventInput{
			EventType:     ev.EventType,
			Payload:       string(payloadBytes),
			Module:        ev.Module,
			SchemaVersion: schemaVersion,
			CorrelationID: env.CorrelationID(),
			MessageID:     env.MessageID(),
		})

		for _, entry := range b.listeners.snapshot(ev.EventType) {
			listenerRefs = append(listenerRefs, txstore.ListenerRef{EventType: ev.EventType, HandlerID: entry.HandlerID})
		}
	}

	data := b.store.BuildTxData(txID, now, inputs, listenerRefs)

	if err := b.store.Transact(ctx, data); err != nil {
		return nil, wrapBusError(ErrKindStoreError, "transact failed", err)
	}

	observability.LogTxCreated(b.opts.Logger, txID, events[0].EventType)

	handle := b.completion.register(txID)

	if data.HandlerCount == 0 {
		// No subscribers for any event in this batch: nothing for the tx
		// worker to drive, so complete immediately rather than leaving the
		// handle to wait forever.
		dur := b.completion.complete(txID, CompletionResult{TxID: txID, OK: true})
		b.opts.Metrics.RecordTransact(ctx, true, dur)
	}

	return handle, nil
}
