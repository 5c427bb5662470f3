package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/lighttrace/pkg/metrics"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trace_entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL,
	ts_unix_ns  INTEGER NOT NULL,
	category    TEXT    NOT NULL,
	operation   TEXT    NOT NULL,
	status      TEXT    NOT NULL DEFAULT '',
	duration_ns INTEGER NOT NULL DEFAULT 0,
	message     TEXT    NOT NULL DEFAULT '',
	attributes  TEXT    NOT NULL DEFAULT ''
);`

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps entries in a SQLite table so they survive restarts.
// Eviction keeps at most capacity rows; seq preserves insertion order.
type SQLiteStore struct {
	db       *sql.DB
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) the database at path. An empty path
// selects a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, capacity int) (*SQLiteStore, error) {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	dsn := "file:" + path
	if path == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	s := &SQLiteStore{db: db, capacity: capacity}
	metrics.UpdateStoreCapacity(capacity)
	metrics.UpdateStoreEntries(s.Count(ctx))
	return s, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) (err error) { //nolint:gocritic // hugeParam: stored by value
	start := time.Now()
	defer func() {
		metrics.RecordStoreAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := e.Validate(); err != nil {
		metrics.RecordErrorByComponent("store", "invalid_entry")
		return err
	}
	attrs := ""
	if len(e.Attributes) > 0 {
		b, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		attrs = string(b)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO trace_entries (id, ts_unix_ns, category, operation, status, duration_ns, message, attributes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixNano(), e.Category, e.Operation, e.Status, int64(e.Duration), e.Message, attrs,
	); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM trace_entries WHERE seq <= (SELECT MAX(seq) FROM trace_entries) - ?`, s.capacity)
	if err != nil {
		return fmt.Errorf("evict entries: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	evicted, _ := res.RowsAffected()
	for range evicted {
		metrics.RecordEntryEvicted()
	}
	metrics.RecordEntryRecorded()
	return nil
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts_unix_ns, category, operation, status, duration_ns, message, attributes
		 FROM trace_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0, s.capacity/16)
	for rows.Next() {
		var (
			e          Entry
			tsNanos    int64
			durationNs int64
			attrs      string
		)
		if err := rows.Scan(&e.ID, &tsNanos, &e.Category, &e.Operation, &e.Status, &durationNs, &e.Message, &attrs); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timestamp = time.Unix(0, tsNanos).UTC()
		e.Duration = time.Duration(durationNs)
		if attrs != "" {
			if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes of %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// Reset implements Store. A single DELETE is atomic for readers.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trace_entries`); err != nil {
		return fmt.Errorf("reset entries: %w", err)
	}
	metrics.RecordStoreReset()
	metrics.UpdateStoreEntries(0)
	return nil
}

// Count implements Store. Query failures count as zero.
func (s *SQLiteStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trace_entries`).Scan(&n); err != nil {
		metrics.RecordErrorByComponent("store", "count_failed")
		return 0
	}
	return n
}

// Capacity returns the configured maximum number of entries.
func (s *SQLiteStore) Capacity() int {
	return s.capacity
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
