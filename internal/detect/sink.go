package detect

import "context"

// Sink is a durable alert destination. The in-memory AlertStore is always
// the store of record for a single run; a Sink additionally persists the
// final rows somewhere a caller can query across runs (SQLite, ClickHouse).
//
// Implementations follow the same Open/Migrate/Close lifecycle as the
// storage backends they are grounded on: Open establishes the connection,
// Migrate is idempotent schema setup safe to call on every startup, and
// Close releases the connection.
type Sink interface {
	Open() error
	Migrate() error
	WriteAlerts(ctx context.Context, rows []AlertRow) error
	Close() error
}

// FlushTo writes every row currently in the store to sink. It does not
// drain the in-memory store; the store remains the authoritative view of
// the current run regardless of sink outcome.
func FlushTo(ctx context.Context, store *AlertStore, sink Sink) error {
	rows := store.Rows()
	if len(rows) == 0 {
		return nil
	}
	return sink.WriteAlerts(ctx, rows)
}
