// Package journal persists engine events in an append-only SQLite table.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/journal/migrations"
)

var (
	ErrDuplicateEvent = errors.New("event already journaled")
	ErrUnknownKind    = errors.New("unknown event kind")
)

// Store appends engine events to SQLite. It implements core.Notifier.
type Store struct {
	sqlDB *sql.DB
}

// Entry is one journaled event with its decoded payload.
type Entry struct {
	Seq int64
	core.Event
}

func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

// Open opens the journal at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Appends are serialized so seq order matches Notify order.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Notify appends event to the journal.
func (s *Store) Notify(ctx context.Context, event core.Event) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("journal is not open")
	}
	if event.ID == uuid.Nil {
		return fmt.Errorf("event id is required")
	}
	payload, err := EncodePayload(event.Payload)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO events (id, kind, auction_id, occurred_at, payload) VALUES (?, ?, ?, ?, ?)`,
		event.ID.String(),
		string(event.Kind),
		int64(event.AuctionID),
		toNanos(event.OccurredAt),
		payload,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
	}
	if err != nil {
		return fmt.Errorf("append %s event: %w", event.Kind, err)
	}
	return nil
}

// Events returns the journaled events of one auction in append order, which
// for a single auction is the engine's commit order. A zero
// auctionID returns every event, including engine-wide ones such as pause
// changes.
func (s *Store) Events(ctx context.Context, auctionID core.AuctionID) ([]Entry, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("journal is not open")
	}

	query := `SELECT seq, id, kind, auction_id, occurred_at, payload FROM events`
	var args []any
	if auctionID != 0 {
		query += ` WHERE auction_id = ?`
		args = append(args, int64(auctionID))
	}
	query += ` ORDER BY seq`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			id         string
			kind       string
			auction    int64
			occurredAt int64
			payload    []byte
		)
		if err := rows.Scan(&entry.Seq, &id, &kind, &auction, &occurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entry.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("event %d: parse id: %w", entry.Seq, err)
		}
		entry.Kind = core.EventKind(kind)
		entry.AuctionID = core.AuctionID(auction)
		entry.OccurredAt = fromNanos(occurredAt)
		entry.Payload, err = Decode(entry.Kind, payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", entry.Seq, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
