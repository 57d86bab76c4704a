// Package journal persists an append-only audit trail of ledger operations in SQLite.
//
// Entries carry plaintext bookkeeping (operation, principal, asset, public unit
// counts) and opaque handles only. Confidential values never reach the journal.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one journaled operation.
type Entry struct {
	ID        string
	Op        string
	Principal string
	AssetID   uint64
	Units     uint64
	Amount    uint64 // plaintext settlement amount: a payment or a drain
	Handles   []string
	At        time.Time
}

// Store is a SQLite-backed journal.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the journal at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("journal is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// Append inserts e, assigning an ID and timestamp when missing.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("journal is not configured")
	}
	if strings.TrimSpace(e.Op) == "" {
		return fmt.Errorf("journal entry op is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	handles := e.Handles
	if handles == nil {
		handles = []string{}
	}
	encoded, err := json.Marshal(handles)
	if err != nil {
		return fmt.Errorf("encode handles: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO journal_entries (id, op, principal, asset_id, units, amount, handles, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Op, e.Principal, int64(e.AssetID), int64(e.Units), int64(e.Amount), string(encoded), e.At.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// List returns up to limit entries in append order. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := `SELECT id, op, principal, asset_id, units, amount, handles, at FROM journal_entries ORDER BY seq`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			assetID int64
			units   int64
			amount  int64
			handles string
			at      int64
		)
		if err := rows.Scan(&e.ID, &e.Op, &e.Principal, &assetID, &units, &amount, &handles, &at); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if err := json.Unmarshal([]byte(handles), &e.Handles); err != nil {
			return nil, fmt.Errorf("decode handles: %w", err)
		}
		e.AssetID = uint64(assetID)
		e.Units = uint64(units)
		e.Amount = uint64(amount)
		e.At = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM journal_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}
