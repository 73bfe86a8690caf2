package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/evtxhunter/evtxhunter/internal/detect"
)

func TestStoreWriteAndMigrateIdempotent(t *testing.T) {
	s := NewStore(":memory:")
	if err := s.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v, want idempotent", err)
	}

	rows := []detect.AlertRow{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), RuleID: "r1", RuleTitle: "one", EventID: 4625},
		{Timestamp: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), RuleID: "r2", RuleTitle: "two", IsAggregate: true},
	}
	if err := s.WriteAlerts(context.Background(), rows); err != nil {
		t.Fatalf("WriteAlerts() error = %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestStoreWriteAlertsEmpty(t *testing.T) {
	s := NewStore(":memory:")
	if err := s.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := s.WriteAlerts(context.Background(), nil); err != nil {
		t.Fatalf("WriteAlerts(nil) error = %v", err)
	}
}
