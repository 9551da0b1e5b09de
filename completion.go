package relaybus

import (
	"sync"
	"time"
)

// CompletionResult is the value delivered exactly once to every observer of
// a transact call's outcome.
type CompletionResult struct {
	TxID  string
	OK    bool
	Error error
}

// Completion is the in-memory entry tracked for one in-flight tx-id:
// a one-shot promise (Wait) and a mutex-protected slice of subscriber
// channels, one per Chan call (the multiplexer). complete() fulfills both
// exactly once.
type Completion struct {
	txID      string
	createdAt time.Time

	once   sync.Once
	result CompletionResult

	done chan struct{} // closed by complete(); Wait blocks on this

	mu          sync.Mutex
	subscribers []chan CompletionResult
}

func newCompletionHandle(txID string) *Completion {
	return &Completion{
		txID:      txID,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Wait blocks until the handle is completed and returns the result. Safe to
// call from multiple goroutines; all observe the same result.
func (h *Completion) Wait() CompletionResult {
	<-h.done
	return h.result
}

// Chan returns a channel that receives exactly one CompletionResult when
// the handle completes, then is never sent to again. Each call returns a
// fresh channel so multiple subscribers each get their own copy — the
// fan-out multiplexer.
func (h *Completion) Chan() <-chan CompletionResult {
	ch := make(chan CompletionResult, 1)

	h.mu.Lock()
	select {
	case <-h.done:
		// Already completed: deliver immediately, no need to queue as a subscriber.
		h.mu.Unlock()
		ch <- h.result
		return ch
	default:
	}
	h.subscribers = append(h.subscribers, ch)
	h.mu.Unlock()

	return ch
}

// complete fulfills the handle exactly once, unblocking Wait and delivering
// to every channel subscriber registered so far.
func (h *Completion) complete(result CompletionResult) {
	h.once.Do(func() {
		h.result = result

		h.mu.Lock()
		subs := h.subscribers
		h.subscribers = nil
		h.mu.Unlock()

		for _, ch := range subs {
			ch <- result
		}
		close(h.done)
	})
}

// completionTable is the lock-protected map of in-flight tx-id ->
// Completion. Entries are removed only when they are completed: by the
// tx worker, or by Transact itself for a batch with no handler rows.
type completionTable struct {
	mu      sync.Mutex
	handles map[string]*Completion
}

func newCompletionTable() *completionTable {
	return &completionTable{handles: make(map[string]*Completion)}
}

// register creates and stores a fresh handle for txID.
func (t *completionTable) register(txID string) *Completion {
	h := newCompletionHandle(txID)
	t.mu.Lock()
	t.handles[txID] = h
	t.mu.Unlock()
	return h
}

// complete fulfills the handle for txID, if still tracked, removes it from
// the table, and returns the elapsed time since the handle was registered
// (zero if txID was not tracked).
func (t *completionTable) complete(txID string, result CompletionResult) time.Duration {
	t.mu.Lock()
	h, ok := t.handles[txID]
	if ok {
		delete(t.handles, txID)
	}
	t.mu.Unlock()

	if !ok {
		return 0
	}
	h.complete(result)
	return time.Since(h.createdAt)
}
