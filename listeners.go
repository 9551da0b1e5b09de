package relaybus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/relaybus/relaybus/pkg/relaybus/schema"
)

// Handler processes one dispatched envelope. It returns true on success;
// false or a non-nil error marks the invocation as failed. bus is passed
// through so a handler may itself publish or transact further envelopes.
type Handler func(ctx context.Context, bus *Bus, env *Envelope) (bool, error)

// ListenerEntry is one subscription: a handler plus its optional
// subscriber-level schema and opaque metadata, used for unsubscribe-by-meta.
type ListenerEntry struct {
	HandlerID string
	Handler   Handler
	Schema    schema.Validator
	Meta      any
}

// listenerTable is a concurrency-safe, insertion-ordered registry of
// listeners per event type. Reads take a consistent snapshot so publish and
// transact never observe a table mutated mid-iteration.
type listenerTable struct {
	mu        sync.RWMutex
	byType    map[string][]*ListenerEntry
}

func newListenerTable() *listenerTable {
	return &listenerTable{byType: make(map[string][]*ListenerEntry)}
}

// subscribe appends a new listener entry for eventType and returns its
// freshly assigned handler id.
func (t *listenerTable) subscribe(eventType string, handler Handler, schemaValidator schema.Validator, meta any) string {
	entry := &ListenerEntry{
		HandlerID: uuid.NewString(),
		Handler:   handler,
		Schema:    schemaValidator,
		Meta:      meta,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.byType[eventType] = append(t.byType[eventType], entry)
	return entry.HandlerID
}

// unsubscribe removes entries under eventType whose handler id or meta
// equals matcher. matcher may be a handler id string (exact match) or any
// comparable meta value supplied at subscribe time.
func (t *listenerTable) unsubscribe(eventType string, matcher any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, ok := t.byType[eventType]
	if !ok {
		return
	}

	kept := entries[:0:0]
	for _, e := range entries {
		if e.HandlerID == matcher {
			continue
		}
		if matchesMeta(e.Meta, matcher) {
			continue
		}
		kept = append(kept, e)
	}

	if len(kept) == 0 {
		delete(t.byType, eventType)
		return
	}
	t.byType[eventType] = kept
}

func matchesMeta(meta, matcher any) bool {
	if meta == nil || matcher == nil {
		return false
	}
	defer func() { recover() }() // meta may be of an incomparable type
	return meta == matcher
}

// clear removes every listener for eventType, or every listener for every
// event type when eventType is empty.
func (t *listenerTable) clear(eventType string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if eventType == "" {
		t.byType = make(map[string][]*ListenerEntry)
		return
	}
	delete(t.byType, eventType)
}

// count returns the number of listeners for eventType, or the total across
// all event types when eventType is empty.
func (t *listenerTable) count(eventType string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if eventType != "" {
		return len(t.byType[eventType])
	}
	total := 0
	for _, entries := range t.byType {
		total += len(entries)
	}
	return total
}

// snapshot returns a copy of the listener slice for eventType, safe to
// range over without holding the table's lock.
func (t *listenerTable) snapshot(eventType string) []*ListenerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.byType[eventType]
	out := make([]*ListenerEntry, len(entries))
	copy(out, entries)
	return out
}

// byHandlerID finds a listener by id within eventType's current snapshot.
// Used by the tx worker, which must resolve handler-id against the
// listener table at execution time rather than at transact time.
func (t *listenerTable) byHandlerID(eventType, handlerID string) (*ListenerEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.byType[eventType] {
		if e.HandlerID == handlerID {
			return e, true
		}
	}
	return nil, false
}

// SubscribeOption customizes a Subscribe call.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	schema schema.Validator
	meta   any
}

// WithSubscriberSchema gates this handler's invocation on payload
// validation. A subscriber-schema rejection skips only this handler; it
// never blocks other listeners for the same event type.
func WithSubscriberSchema(v schema.Validator) SubscribeOption {
	return func(c *subscribeConfig) { c.schema = v }
}

// WithMeta attaches an opaque value to the registration, usable later as an
// Unsubscribe matcher.
func WithMeta(meta any) SubscribeOption {
	return func(c *subscribeConfig) { c.meta = meta }
}

// Subscribe registers handler for eventType and returns its freshly
// assigned handler id.
func (b *Bus) Subscribe(eventType string, handler Handler, opts ...SubscribeOption) (string, error) {
	if b.closed.Load() {
		return "", newBusError(ErrKindClosed, "bus is closed")
	}

	cfg := subscribeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return b.listeners.subscribe(eventType, handler, cfg.schema, cfg.meta), nil
}
