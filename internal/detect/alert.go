// Package detect is the detection orchestrator: it pumps batches of
// decoded records through a compiled rule set, emits alerts from
// non-aggregating matches immediately, and flushes aggregating rules'
// windows at the end of a run.
package detect

import "time"

// AlertRow is one emitted match, ready for the driver to print, store, or
// notify on.
type AlertRow struct {
	Timestamp   time.Time
	EventID     int64
	Channel     string
	Computer    string
	RuleID      string
	RuleTitle   string
	RuleLevel   string
	Details     string
	SourceFile  string
	IsAggregate bool
}

// dedupKey identifies a row for Alert Store deduplication.
type dedupKey struct {
	timestamp int64
	eventID   int64
	ruleID    string
}

func (a AlertRow) dedupKey() dedupKey {
	return dedupKey{timestamp: a.Timestamp.UnixNano(), eventID: a.EventID, ruleID: a.RuleID}
}
