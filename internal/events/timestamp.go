package events

import "time"

// timeCreatedPath is the canonical path for the EVTX-native timestamp.
var timeCreatedPath = []string{"Event", "System", "TimeCreated_attributes", "SystemTime"}

// jsonFallbackPaths are tried, in order, when the native path is absent --
// covering JSON/JSONL dumps produced by decoders that surface the event
// time under EventData instead.
var jsonFallbackPaths = [][]string{
	{"Event", "EventData", "@timestamp"},
	{"Event", "EventData", "TimeGenerated"},
}

// timeLayouts are attempted in order against whatever string form the
// timestamp field carries.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.9999999Z",
	"2006-01-02 15:04:05",
}

// ResolveTime extracts a record's UTC event time, trying the EVTX-native
// path first, then the JSON fallbacks. Parse failure or a fully-missing
// timestamp returns ok=false; the caller is responsible for the
// "still evaluated by non-aggregating rules, skipped by aggregating rules"
// policy -- this function only resolves the value.
func (t *AliasTable) ResolveTime(record *Record) (time.Time, bool) {
	if v, ok := walk(record.Data, timeCreatedPath); ok {
		if ts, ok := parseTimestamp(v); ok {
			return ts, true
		}
	}
	for _, path := range jsonFallbackPaths {
		if v, ok := walk(record.Data, path); ok {
			if ts, ok := parseTimestamp(v); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, val); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		// epoch seconds, as some JSON dumps encode @timestamp numerically
		return time.Unix(int64(val), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
