// Package sqlite persists alert rows to a SQLite database for durable,
// queryable storage across runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/evtxhunter/evtxhunter/internal/detect"
)

// Store implements detect.Sink over a SQLite database file.
type Store struct {
	path string
	db   *sql.DB
}

// NewStore returns a sink writing to the database file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Open establishes the connection. SQLite is single-writer, so the pool is
// capped at one connection to avoid SQLITE_BUSY under concurrent inserts.
func (s *Store) Open() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the alerts table if it does not already exist.
func (s *Store) Migrate() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			event_id INTEGER NOT NULL DEFAULT 0,
			channel TEXT NOT NULL DEFAULT '',
			computer TEXT NOT NULL DEFAULT '',
			rule_id TEXT NOT NULL,
			rule_title TEXT NOT NULL DEFAULT '',
			rule_level TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			source_file TEXT NOT NULL DEFAULT '',
			is_aggregate INTEGER NOT NULL DEFAULT 0
		)
	`
	if _, err := s.db.ExecContext(context.Background(), schema); err != nil {
		return fmt.Errorf("create alerts table: %w", err)
	}
	const index = `CREATE INDEX IF NOT EXISTS idx_alerts_rule_ts ON alerts (rule_id, timestamp)`
	if _, err := s.db.ExecContext(context.Background(), index); err != nil {
		return fmt.Errorf("create alerts index: %w", err)
	}
	return nil
}

// WriteAlerts inserts rows in a single transaction.
func (s *Store) WriteAlerts(ctx context.Context, rows []detect.AlertRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (
			timestamp, event_id, channel, computer, rule_id, rule_title,
			rule_level, details, source_file, is_aggregate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Timestamp, row.EventID, row.Channel, row.Computer, row.RuleID,
			row.RuleTitle, row.RuleLevel, row.Details, row.SourceFile,
			boolToInt(row.IsAggregate),
		)
		if err != nil {
			return fmt.Errorf("insert alert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
