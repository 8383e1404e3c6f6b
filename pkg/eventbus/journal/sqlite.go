package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists entries to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates a journal database.
// The path should be a file path (e.g., "./journal.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS journal (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			bus TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			event_type TEXT NOT NULL,
			handler TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_journal_kind
		ON journal(kind)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal (id, bus, delivery_id, kind, event_type, handler, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Bus, e.DeliveryID, string(e.Kind), e.EventType, e.Handler, e.Message,
		e.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.DeliveryID != "" {
		where = append(where, "delivery_id = ?")
		args = append(args, f.DeliveryID)
	}

	query := `SELECT id, bus, delivery_id, kind, event_type, handler, message, timestamp FROM journal`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			kind      string
			timestamp string
		)
		if err := rows.Scan(&e.ID, &e.Bus, &e.DeliveryID, &kind, &e.EventType, &e.Handler, &e.Message, &timestamp); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, kind Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var (
		n   int
		err error
	)
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal WHERE kind = ?`, string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Prune implements Store. Timestamps are stored as UTC RFC 3339 text, which
// sorts chronologically only at a fixed precision, so the comparison is done
// on parsed values.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, timestamp FROM journal`)
	if err != nil {
		return 0, fmt.Errorf("scan for prune: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var (
			seq       int64
			timestamp string
		)
		if err := rows.Scan(&seq, &timestamp); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan entry: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil && ts.Before(before) {
			stale = append(stale, seq)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate entries: %w", err)
	}
	rows.Close()

	for _, seq := range stale {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE seq = ?`, seq); err != nil {
			return 0, fmt.Errorf("prune entries: %w", err)
		}
	}
	return len(stale), nil
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
