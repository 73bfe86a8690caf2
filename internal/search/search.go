// Package search implements ad hoc keyword and regex search over decoded
// records, independent of the rule engine.
package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evtxhunter/evtxhunter/internal/events"
)

// Filter is one field:value constraint a record must satisfy, e.g.
// "EventID:4625" or "Channel:Security". Matching is substring, not exact,
// matching the case-insensitive "contains" semantics the rest of the
// accessor pipeline uses.
type Filter struct {
	Field string
	Value string
}

// ParseFilters parses "field:value" strings into Filters, skipping any
// entry without a colon (no usable field:value split).
func ParseFilters(raw []string) []Filter {
	var out []Filter
	for _, r := range raw {
		r = strings.Trim(r, `"`)
		idx := strings.Index(r, ":")
		if idx < 0 {
			continue
		}
		out = append(out, Filter{
			Field: strings.TrimSpace(r[:idx]),
			Value: strings.TrimSpace(r[idx+1:]),
		})
	}
	return out
}

// Result is one matched record's extracted display fields.
type Result struct {
	Timestamp  string
	Hostname   string
	Channel    string
	EventID    string
	RecordID   string
	AllFields  string
	SourceFile string
}

// Options configures a search pass.
type Options struct {
	Keywords      []string
	Regex         string
	Filters       []Filter
	IgnoreCase    bool
	ChannelAlias  string
	EventIDAlias  string
	ComputerAlias string
	RecordIDAlias string
}

func (o Options) withDefaults() Options {
	if o.ChannelAlias == "" {
		o.ChannelAlias = "Channel"
	}
	if o.EventIDAlias == "" {
		o.EventIDAlias = "EventID"
	}
	if o.ComputerAlias == "" {
		o.ComputerAlias = "Computer"
	}
	if o.RecordIDAlias == "" {
		o.RecordIDAlias = "EventRecordID"
	}
	return o
}

// Run scans records for keyword and/or regex matches among those that pass
// every filter, returning one Result per matching record. An empty
// Keywords and empty Regex matches nothing.
func Run(records []*events.Record, aliases *events.AliasTable, opts Options) ([]Result, error) {
	opts = opts.withDefaults()

	var re *regexp.Regexp
	if opts.Regex != "" {
		compiled, err := regexp.Compile(opts.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile search regex: %w", err)
		}
		re = compiled
	}

	var results []Result
	for _, rec := range records {
		if !passesFilters(rec, aliases, opts.Filters) {
			continue
		}

		matched := false
		if len(opts.Keywords) > 0 {
			matched = matchesKeywords(rec, opts.Keywords, opts.IgnoreCase)
		}
		if !matched && re != nil {
			matched = re.MatchString(rec.Flattened)
		}
		if !matched {
			continue
		}

		results = append(results, extractResult(rec, aliases, opts))
	}
	return results, nil
}

// matchesKeywords lowercases each keyword and tests it against the record's
// flattened form, which is always lowercased, so the scan is
// case-insensitive whatever ignoreCase says; ignoreCase is not used.
func matchesKeywords(rec *events.Record, keywords []string, ignoreCase bool) bool {
	_ = ignoreCase
	for _, kw := range keywords {
		if strings.Contains(rec.Flattened, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func passesFilters(rec *events.Record, aliases *events.AliasTable, filters []Filter) bool {
	for _, f := range filters {
		val, ok := aliases.GetString(f.Field, rec)
		if !ok {
			val = "n/a"
		}
		if !strings.Contains(strings.ToLower(val), strings.ToLower(f.Value)) {
			return false
		}
	}
	return true
}

func extractResult(rec *events.Record, aliases *events.AliasTable, opts Options) Result {
	get := func(alias string) string {
		v, ok := aliases.GetString(alias, rec)
		if !ok || v == "" {
			return "-"
		}
		return v
	}
	ts := "n/a"
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.Format("2006-01-02T15:04:05Z")
	}
	return Result{
		Timestamp:  ts,
		Hostname:   get(opts.ComputerAlias),
		Channel:    get(opts.ChannelAlias),
		EventID:    get(opts.EventIDAlias),
		RecordID:   get(opts.RecordIDAlias),
		AllFields:  rec.Flattened,
		SourceFile: rec.SourceFile,
	}
}
