package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evtxhunter/evtxhunter/internal/detect"
)

func newPopulatedStore() *detect.AlertStore {
	store := detect.NewAlertStore(false)
	store.Add(detect.AlertRow{
		Timestamp: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		EventID:   4625, Channel: "Security", Computer: "DC01",
		RuleID: "rule-1", RuleTitle: "Failed Logon", RuleLevel: "high",
		Details: "multiple failed logons",
	})
	store.Add(detect.AlertRow{
		Timestamp: time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC),
		EventID:   4688, Channel: "Security", Computer: "WEB01",
		RuleID: "rule-2", RuleTitle: "Process Creation", RuleLevel: "low",
		Details: "benign process", IsAggregate: true,
	})
	return store
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var resp dataResponse
	resp.Data = out
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestListNoFilters(t *testing.T) {
	h := NewHandler(newPopulatedStore(), detect.RunStats{RecordsSeen: 10})

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var rows []AlertResponse
	decodeData(t, rec, &rows)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
}

func TestListFilterByRuleID(t *testing.T) {
	h := NewHandler(newPopulatedStore(), detect.RunStats{})

	req := httptest.NewRequest(http.MethodGet, "/alerts?rule_id=rule-1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var rows []AlertResponse
	decodeData(t, rec, &rows)
	if len(rows) != 1 || rows[0].RuleID != "rule-1" {
		t.Fatalf("rows = %+v, want single rule-1 row", rows)
	}
}

func TestListFilterByTimeRange(t *testing.T) {
	h := NewHandler(newPopulatedStore(), detect.RunStats{})

	req := httptest.NewRequest(http.MethodGet, "/alerts?from=2024-01-16T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var rows []AlertResponse
	decodeData(t, rec, &rows)
	if len(rows) != 1 || rows[0].RuleID != "rule-2" {
		t.Fatalf("rows = %+v, want single rule-2 row", rows)
	}
}

func TestListFilterByQueryExpression(t *testing.T) {
	h := NewHandler(newPopulatedStore(), detect.RunStats{})

	req := httptest.NewRequest(http.MethodGet, "/alerts?q=is_aggregate", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var rows []AlertResponse
	decodeData(t, rec, &rows)
	if len(rows) != 1 || rows[0].RuleID != "rule-2" {
		t.Fatalf("rows = %+v, want single aggregate row", rows)
	}
}

func TestListRejectsInvalidQuery(t *testing.T) {
	h := NewHandler(newPopulatedStore(), detect.RunStats{})

	req := httptest.NewRequest(http.MethodGet, "/alerts?q=not+valid+expr+===", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListRejectsInvalidFrom(t *testing.T) {
	h := NewHandler(newPopulatedStore(), detect.RunStats{})

	req := httptest.NewRequest(http.MethodGet, "/alerts?from=not-a-time", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListRespectsLimit(t *testing.T) {
	h := NewHandler(newPopulatedStore(), detect.RunStats{})

	req := httptest.NewRequest(http.MethodGet, "/alerts?limit=1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	var rows []AlertResponse
	decodeData(t, rec, &rows)
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
}

func TestStats(t *testing.T) {
	store := newPopulatedStore()
	h := NewHandler(store, detect.RunStats{
		RecordsSeen: 100, RecordsFiltered: 5, AlertsEmitted: 2,
		FailedRules: []string{"rule-3"},
	})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	var stats StatsResponse
	decodeData(t, rec, &stats)
	if stats.RecordsSeen != 100 || stats.AlertsStored != 2 || len(stats.FailedRules) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
