// Package clickhouse persists alert rows to ClickHouse for high-volume,
// long-retention detection runs.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/evtxhunter/evtxhunter/internal/detect"
)

// Config configures the ClickHouse connection.
type Config struct {
	Addresses     []string
	Database      string
	Username      string
	Password      string
	MaxOpenConns  int
	MaxIdleConns  int
	DialTimeout   time.Duration
	Compression   bool
	RetentionDays int
}

func (c *Config) withDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 5
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
}

// Store implements detect.Sink over a ClickHouse cluster.
type Store struct {
	config *Config
	db     *sql.DB
}

// NewStore returns a sink for config, applying defaults for unset fields.
func NewStore(config *Config) *Store {
	config.withDefaults()
	return &Store{config: config}
}

// Open dials ClickHouse and verifies the connection.
func (s *Store) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}
	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}

	db := clickhouse.OpenDB(opts)
	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the alerts table and its TTL, retried safely on restart.
func (s *Store) Migrate() error {
	ctx := context.Background()
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS alerts (
			id UUID DEFAULT generateUUIDv4(),
			timestamp DateTime64(3, 'UTC'),
			event_id Int64 DEFAULT 0,
			channel LowCardinality(String) DEFAULT '',
			computer String DEFAULT '',
			rule_id String,
			rule_title String DEFAULT '',
			rule_level LowCardinality(String) DEFAULT '',
			details String DEFAULT '',
			source_file String DEFAULT '',
			is_aggregate UInt8 DEFAULT 0,
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (rule_id, timestamp, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create alerts table: %w", err)
	}

	indexes := []string{
		"ALTER TABLE alerts ADD INDEX IF NOT EXISTS idx_rule_id rule_id TYPE bloom_filter(0.01) GRANULARITY 4",
		"ALTER TABLE alerts ADD INDEX IF NOT EXISTS idx_timestamp_minmax timestamp TYPE minmax GRANULARITY 3",
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			fmt.Printf("warning: failed to create index: %v\n", err)
		}
	}

	return nil
}

// WriteAlerts batch-inserts rows in one transaction, the insert shape
// ClickHouse's native protocol expects for efficient ingestion.
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
			row.RuleTitle, row.RuleLevel, row.Details, row.SourceFile, row.IsAggregate,
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
