package txstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore persists tx/msg/handler rows to SQLite. Suitable for
// single-process production use; a single writer lock serializes Transact
// and UpdateHandler, matching the default expectation that one in-process
// lock is sufficient for this workload.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at path. path may
// be ":memory:" for an ephemeral database.
//
// The database file is created with restrictive permissions (0600) before
// sql.Open ever touches it, closing the TOCTOU window where the file would
// otherwise be briefly world-readable.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if createErr == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Warn("failed to close tx store file after creation",
						slog.String("path", path), slog.String("error", closeErr.Error()))
				}
			}
			// ignore createErr: the file may have been created concurrently (TOCTOU)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite enforces foreign keys per-connection, off by default, so the
	// ON DELETE CASCADE clauses in the schema below are inert unless this
	// pragma is set on every connection the pool hands out. Pinning the pool
	// to a single connection (Transact/UpdateHandler/etc. already serialize
	// through s.mu) makes one PRAGMA call here sufficient for the store's
	// lifetime.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0600); err != nil {
			slog.Warn("failed to set restrictive permissions on tx store file",
				slog.String("path", path), slog.String("error", err.Error()),
				slog.String("security_note", "tx payloads may be readable by other users"))
		}
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS txs (
			tx_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS msgs (
			msg_id TEXT PRIMARY KEY,
			tx_id TEXT NOT NULL REFERENCES txs(tx_id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			module TEXT NOT NULL,
			schema_version TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			causation_path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS handler_rows (
			h_id TEXT PRIMARY KEY,
			msg_id TEXT NOT NULL REFERENCES msgs(msg_id) ON DELETE CASCADE,
			handler_id TEXT NOT NULL,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL,
			last_error TEXT,
			updated_at INTEGER NOT NULL,
			next_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_handler_status_next_at ON handler_rows(status, next_at)`,
		`CREATE INDEX IF NOT EXISTS idx_msg_tx_id ON msgs(tx_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// BuildTxData implements Store.
func (s *SQLiteStore) BuildTxData(txID string, now time.Time, events []EventInput, listeners []ListenerRef) TxData {
	return buildTxData(txID, now, events, listeners)
}

// Transact implements Store.
func (s *SQLiteStore) Transact(ctx context.Context, data TxData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transact: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO txs (tx_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		data.Tx.ID, string(data.Tx.Status), data.Tx.CreatedAt, data.Tx.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert tx: %w", err)
	}

	for _, m := range data.Msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO msgs (msg_id, tx_id, event_type, payload, module, schema_version, correlation_id, message_id, causation_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.TxID, m.EventType, m.Payload, m.Module, m.SchemaVersion, m.CorrelationID, m.MessageID, m.CausationPath,
		); err != nil {
			return fmt.Errorf("insert msg: %w", err)
		}
	}

	for _, h := range data.HandlerRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO handler_rows (h_id, msg_id, handler_id, status, retry_count, last_error, updated_at, next_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.MsgID, h.HandlerID, string(h.Status), h.RetryCount, h.LastError, h.UpdatedAt, h.NextAt,
		); err != nil {
			return fmt.Errorf("insert handler row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transact: %w", err)
	}
	return nil
}

// QueryPendingHandlers implements Store.
func (s *SQLiteStore) QueryPendingHandlers(ctx context.Context, now time.Time) ([]PendingHandler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT h.h_id, h.msg_id, m.tx_id, m.event_type, m.payload, m.module,
		       m.schema_version, m.correlation_id, m.message_id, m.causation_path,
		       h.handler_id, h.retry_count
		FROM handler_rows h
		JOIN msgs m ON m.msg_id = h.msg_id
		WHERE h.status = ? AND h.next_at <= ?
	`, string(HandlerPending), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query pending handlers: %w", err)
	}
	defer rows.Close()

	var out []PendingHandler
	for rows.Next() {
		var p PendingHandler
		if err := rows.Scan(&p.HandlerRowID, &p.MsgID, &p.TxID, &p.EventType, &p.Payload, &p.Module,
			&p.SchemaVersion, &p.CorrelationID, &p.MessageID, &p.CausationPath,
			&p.HandlerID, &p.RetryCount); err != nil {
			return nil, fmt.Errorf("scan pending handler: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending handlers: %w", err)
	}
	return out, nil
}

// UpdateHandler implements Store.
func (s *SQLiteStore) UpdateHandler(ctx context.Context, update HandlerUpdate, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE handler_rows
		SET status = ?, retry_count = ?, last_error = ?, updated_at = ?, next_at = ?
		WHERE h_id = ?
	`, string(update.Status), update.RetryCount, update.LastError, now.UnixMilli(), update.NextAt, update.HandlerRowID)
	if err != nil {
		return fmt.Errorf("update handler row: %w", err)
	}
	return nil
}

// TxStatus implements Store.
func (s *SQLiteStore) TxStatus(ctx context.Context, txID string) (TxStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status FROM handler_rows WHERE msg_id IN (SELECT msg_id FROM msgs WHERE tx_id = ?)`, txID)
	if err != nil {
		return "", fmt.Errorf("query handler statuses: %w", err)
	}
	defer rows.Close()

	var statuses []HandlerStatus
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return "", fmt.Errorf("scan handler status: %w", err)
		}
		statuses = append(statuses, HandlerStatus(st))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate handler statuses: %w", err)
	}

	return deriveTxStatus(statuses), nil
}

// UpdateTx implements Store.
func (s *SQLiteStore) UpdateTx(ctx context.Context, txID string, status TxStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `UPDATE txs SET status = ?, updated_at = ? WHERE tx_id = ?`,
		string(status), now.UnixMilli(), txID)
	if err != nil {
		return fmt.Errorf("update tx: %w", err)
	}
	return nil
}

// Cleanup implements Store. Deletes terminal (ok/failed) tx rows older than
// retention; msgs and handler_rows cascade via foreign keys.
func (s *SQLiteStore) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	cutoff := now.Add(-retention).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM txs WHERE status IN (?, ?) AND updated_at < ?`,
		string(TxOK), string(TxFailed), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
