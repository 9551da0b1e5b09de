package relaybus

import (
	"sync/atomic"
	"time"

	"github.com/relaybus/relaybus/pkg/relaybus/observability"
	"github.com/relaybus/relaybus/pkg/relaybus/txstore"
)

// Bus is the event bus handle returned by New. All methods are safe for
// concurrent use.
type Bus struct {
	opts Options

	listeners  *listenerTable
	executor   *executor
	completion *completionTable
	store      txstore.Store

	closed atomic.Bool

	workerStop chan struct{}
	workerDone chan struct{}
}

// New constructs a Bus per opts. A schema registry is required; its
// absence fails construction rather than deferring the error to first use.
func New(opts ...Option) (*Bus, error) {
	cfg := DefaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.SchemaRegistry == nil {
		return nil, newBusError(ErrKindInvalidArgument, "schema-registry is required")
	}

	b := &Bus{
		opts:       cfg,
		listeners:  newListenerTable(),
		executor:   newExecutor(cfg.Mode, cfg.BufferSize, cfg.Concurrency, cfg.Logger),
		completion: newCompletionTable(),
		store:      cfg.TxStore,
	}

	if b.store != nil {
		b.workerStop = make(chan struct{})
		b.workerDone = make(chan struct{})
		go b.runTxWorker()
	}

	return b, nil
}

// Close shuts the bus down: marks the bus closed, stops the tx worker (if
// any), and stops the buffered dispatch worker pool, waiting up to timeout
// for each. Tasks still queued in buffered mode may be dropped rather than
// run, and unlimited-mode handler goroutines are not waited for.
// Idempotent — a second call is a no-op.
func (b *Bus) Close(timeout ...time.Duration) {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	observability.LogBusClosing(b.opts.Logger)
	start := time.Now()

	wait := 10 * time.Second
	if len(timeout) > 0 {
		wait = timeout[0]
	}

	if b.workerStop != nil {
		close(b.workerStop)
		select {
		case <-b.workerDone:
		case <-time.After(wait):
			observability.LogShutdownTimeout(b.opts.Logger, float64(time.Since(start).Milliseconds()))
		}
	}

	done := make(chan struct{})
	go func() {
		b.executor.close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(wait):
		observability.LogShutdownTimeout(b.opts.Logger, float64(time.Since(start).Milliseconds()))
	}

	if b.store != nil {
		b.store.Close()
	}

	observability.LogBusClosed(b.opts.Logger, float64(time.Since(start).Milliseconds()))
}

// IsClosed reports whether Close has been called.
func (b *Bus) IsClosed() bool {
	return b.closed.Load()
}

// Unsubscribe removes listeners under eventType whose handler id or meta
// equals matcher.
func (b *Bus) Unsubscribe(eventType string, matcher any) error {
	if b.closed.Load() {
		return newBusError(ErrKindClosed, "bus is closed")
	}
	b.listeners.unsubscribe(eventType, matcher)
	return nil
}

// ClearListeners purges listeners for eventType, or every event type when
// eventType is empty.
func (b *Bus) ClearListeners(eventType string) error {
	if b.closed.Load() {
		return newBusError(ErrKindClosed, "bus is closed")
	}
	b.listeners.clear(eventType)
	return nil
}

// ListenerCount reports the number of listeners for eventType, or the total
// across all event types when eventType is empty.
func (b *Bus) ListenerCount(eventType string) int {
	return b.listeners.count(eventType)
}
