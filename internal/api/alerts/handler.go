// Package alerts serves the read-only Alerts API over a completed run's
// alert store and stats snapshot.
package alerts

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/evtxhunter/evtxhunter/internal/detect"
	"github.com/evtxhunter/evtxhunter/internal/query"
)

// errorResponse and dataResponse mirror the envelope used elsewhere in the
// API so every endpoint returns the same {data|error} shape.
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// AlertResponse is the JSON projection of a detect.AlertRow.
type AlertResponse struct {
	Timestamp   time.Time `json:"timestamp"`
	EventID     int64     `json:"event_id"`
	Channel     string    `json:"channel"`
	Computer    string    `json:"computer"`
	RuleID      string    `json:"rule_id"`
	RuleTitle   string    `json:"rule_title"`
	RuleLevel   string    `json:"rule_level"`
	Details     string    `json:"details"`
	SourceFile  string    `json:"source_file"`
	IsAggregate bool      `json:"is_aggregate"`
}

// StatsResponse mirrors detect.RunStats plus the number of rows the store
// holds.
type StatsResponse struct {
	RecordsSeen     int      `json:"records_seen"`
	RecordsFiltered int      `json:"records_filtered"`
	AlertsEmitted   int      `json:"alerts_emitted"`
	AlertsDeduped   int      `json:"alerts_deduped"`
	FailedRules     []string `json:"failed_rules"`
	AlertsStored    int      `json:"alerts_stored"`
}

// Handler serves alerts and stats over a single completed run.
type Handler struct {
	store *detect.AlertStore
	stats detect.RunStats
}

// NewHandler builds a Handler over the store and stats of a finished run.
func NewHandler(store *detect.AlertStore, stats detect.RunStats) *Handler {
	return &Handler{store: store, stats: stats}
}

// List handles GET /alerts?from=&to=&rule_id=&q=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var from, to time.Time
	var err error
	if v := q.Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from: "+err.Error())
			return
		}
	}
	if v := q.Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to: "+err.Error())
			return
		}
	}

	ruleID := q.Get("rule_id")

	filter, err := query.Compile(q.Get("q"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			jsonError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit")
			return
		}
	}

	rows := h.store.Rows()
	resp := make([]AlertResponse, 0, len(rows))
	for i := range rows {
		row := &rows[i]

		if !from.IsZero() && row.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && row.Timestamp.After(to) {
			continue
		}
		if ruleID != "" && row.RuleID != ruleID {
			continue
		}

		matched, err := filter.Match(row)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		if !matched {
			continue
		}

		resp = append(resp, alertToResponse(row))
		if limit > 0 && len(resp) >= limit {
			break
		}
	}

	jsonOK(w, resp)
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	failed := h.stats.FailedRules
	if failed == nil {
		failed = []string{}
	}
	jsonOK(w, StatsResponse{
		RecordsSeen:     h.stats.RecordsSeen,
		RecordsFiltered: h.stats.RecordsFiltered,
		AlertsEmitted:   h.stats.AlertsEmitted,
		AlertsDeduped:   h.stats.AlertsDeduped,
		FailedRules:     failed,
		AlertsStored:    h.store.Len(),
	})
}

func alertToResponse(row *detect.AlertRow) AlertResponse {
	return AlertResponse{
		Timestamp:   row.Timestamp,
		EventID:     row.EventID,
		Channel:     row.Channel,
		Computer:    row.Computer,
		RuleID:      row.RuleID,
		RuleTitle:   row.RuleTitle,
		RuleLevel:   row.RuleLevel,
		Details:     row.Details,
		SourceFile:  row.SourceFile,
		IsAggregate: row.IsAggregate,
	}
}
