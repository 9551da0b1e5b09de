package txstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation: three maps guarded by
// one RWMutex, with deep-copies on read and write so callers can never
// mutate stored state through a returned value.
type MemoryStore struct {
	mu       sync.RWMutex
	txs      map[string]Tx
	msgs     map[string]Msg
	handlers map[string]HandlerRow
	closed   bool
}

// NewMemoryStore creates a new in-memory tx store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs:      make(map[string]Tx),
		msgs:     make(map[string]Msg),
		handlers: make(map[string]HandlerRow),
	}
}

// BuildTxData implements Store.
func (s *MemoryStore) BuildTxData(txID string, now time.Time, events []EventInput, listeners []ListenerRef) TxData {
	return buildTxData(txID, now, events, listeners)
}

// Transact implements Store.
func (s *MemoryStore) Transact(_ context.Context, data TxData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.txs[data.Tx.ID] = data.Tx
	for _, m := range data.Msgs {
		s.msgs[m.ID] = m
	}
	for _, h := range data.HandlerRows {
		s.handlers[h.ID] = h
	}
	return nil
}

// QueryPendingHandlers implements Store.
func (s *MemoryStore) QueryPendingHandlers(_ context.Context, now time.Time) ([]PendingHandler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	nowMs := now.UnixMilli()
	var out []PendingHandler
	for _, h := range s.handlers {
		if h.Status != HandlerPending || h.NextAt > nowMs {
			continue
		}
		m, ok := s.msgs[h.MsgID]
		if !ok {
			continue
		}
		out = append(out, PendingHandler{
			HandlerRowID:  h.ID,
			MsgID:         m.ID,
			TxID:          m.TxID,
			EventType:     m.EventType,
			Payload:       m.Payload,
			Module:        m.Module,
			SchemaVersion: m.SchemaVersion,
			CorrelationID: m.CorrelationID,
			MessageID:     m.MessageID,
			CausationPath: m.CausationPath,
			HandlerID:     h.HandlerID,
			RetryCount:    h.RetryCount,
		})
	}
	return out, nil
}

// UpdateHandler implements Store.
func (s *MemoryStore) UpdateHandler(_ context.Context, update HandlerUpdate, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	h, ok := s.handlers[update.HandlerRowID]
	if !ok {
		return ErrNotFound
	}
	h.Status = update.Status
	h.RetryCount = update.RetryCount
	h.LastError = update.LastError
	h.UpdatedAt = now.UnixMilli()
	h.NextAt = update.NextAt
	s.handlers[h.ID] = h
	return nil
}

// TxStatus implements Store.
func (s *MemoryStore) TxStatus(_ context.Context, txID string) (TxStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var statuses []HandlerStatus
	for _, h := range s.handlers {
		m, ok := s.msgs[h.MsgID]
		if !ok || m.TxID != txID {
			continue
		}
		statuses = append(statuses, h.Status)
	}
	return deriveTxStatus(statuses), nil
}

// UpdateTx implements Store.
func (s *MemoryStore) UpdateTx(_ context.Context, txID string, status TxStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, ok := s.txs[txID]
	if !ok {
		return ErrNotFound
	}
	tx.Status = status
	tx.UpdatedAt = now.UnixMilli()
	s.txs[txID] = tx
	return nil
}

// Cleanup implements Store.
func (s *MemoryStore) Cleanup(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	cutoff := now.Add(-retention).UnixMilli()
	removed := 0
	for txID, tx := range s.txs {
		if (tx.Status != TxOK && tx.Status != TxFailed) || tx.UpdatedAt >= cutoff {
			continue
		}
		delete(s.txs, txID)
		for msgID, m := range s.msgs {
			if m.TxID != txID {
				continue
			}
			delete(s.msgs, msgID)
			for hID, h := range s.handlers {
				if h.MsgID == msgID {
					delete(s.handlers, hID)
				}
			}
		}
		removed++
	}
	return removed, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len reports the number of tx rows currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}
