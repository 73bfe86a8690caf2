package detect

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evtxhunter/evtxhunter/internal/events"
	"github.com/evtxhunter/evtxhunter/internal/sigma"
	"github.com/evtxhunter/evtxhunter/internal/window"
)

// DefaultBatchSize matches the implementation budget's batch size.
const DefaultBatchSize = 5000

// TimeRange bounds a run to records with timestamps in [Start, End]. A
// zero value on either side means unbounded on that side.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (tr TimeRange) contains(t time.Time) bool {
	if !tr.Start.IsZero() && t.Before(tr.Start) {
		return false
	}
	if !tr.End.IsZero() && t.After(tr.End) {
		return false
	}
	return true
}

// Options configures one orchestrator run.
type Options struct {
	BatchSize      int
	EventIDFilter  map[int64]bool // nil or empty means no filter
	TimeRange      *TimeRange
	SearchMode     bool // skips channel/event-id/time pre-filtering
	DedupAlerts    bool
	ChannelAlias   string // alias name resolving to the Channel field, default "Channel"
	ComputerAlias  string // alias name resolving to the Computer field, default "Computer"
	EventIDAlias   string // alias name resolving to the EventID field, default "EventID"
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ChannelAlias == "" {
		o.ChannelAlias = "Channel"
	}
	if o.ComputerAlias == "" {
		o.ComputerAlias = "Computer"
	}
	if o.EventIDAlias == "" {
		o.EventIDAlias = "EventID"
	}
	return o
}

// RunStats tallies one run for the caller to report.
type RunStats struct {
	RecordsSeen     int
	RecordsFiltered int
	AlertsEmitted   int
	AlertsDeduped   int
	FailedRules     []string
}

// Orchestrator pumps batches of records through a compiled rule set. One
// Orchestrator is built per run; it owns the aggregation slots and the
// alert store for that run only.
type Orchestrator struct {
	Rules   []*sigma.RuleNode
	Aliases *events.AliasTable
	Store   *AlertStore

	opts Options
	slots *window.Manager

	failMu sync.Mutex
	failed map[string]bool
}

// NewOrchestrator builds an orchestrator for one run over rules.
func NewOrchestrator(rules []*sigma.RuleNode, aliases *events.AliasTable, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		Rules:   rules,
		Aliases: aliases,
		Store:   NewAlertStore(opts.DedupAlerts),
		opts:    opts,
		slots:   window.NewManager(),
		failed:  make(map[string]bool),
	}
}

// Run drives records through every batch of size opts.BatchSize, then
// flushes every aggregating rule's windows. It returns an error only if
// ctx is canceled between batches; rules that fail are listed in
// RunStats.FailedRules instead.
func (o *Orchestrator) Run(ctx context.Context, records []*events.Record) (RunStats, error) {
	var stats RunStats

	for start := 0; start < len(records); start += o.opts.BatchSize {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		end := start + o.opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := o.filterBatch(records[start:end], &stats)
		stats.RecordsSeen += end - start

		if err := o.runBatch(ctx, batch, &stats); err != nil {
			return stats, err
		}
	}

	o.flush(&stats)

	o.failMu.Lock()
	for id := range o.failed {
		stats.FailedRules = append(stats.FailedRules, id)
	}
	o.failMu.Unlock()

	return stats, nil
}

// filterBatch applies the channel/event-id/time-range pre-filter, skipped
// entirely in search mode.
func (o *Orchestrator) filterBatch(batch []*events.Record, stats *RunStats) []*events.Record {
	if o.opts.SearchMode {
		return batch
	}

	out := batch[:0:0]
	for _, rec := range batch {
		channel, ok := o.Aliases.GetString(o.opts.ChannelAlias, rec)
		if !ok || channel == "" {
			stats.RecordsFiltered++
			continue
		}
		if len(o.opts.EventIDFilter) > 0 {
			eid, ok := o.eventID(rec)
			if !ok || !o.opts.EventIDFilter[eid] {
				stats.RecordsFiltered++
				continue
			}
		}
		if o.opts.TimeRange != nil && !rec.TimeMissing && !o.opts.TimeRange.contains(rec.Timestamp) {
			stats.RecordsFiltered++
			continue
		}
		out = append(out, rec)
	}
	return out
}

// runBatch fans the batch out across rules in parallel; each rule consumes
// the whole batch sequentially. A rule that panics is isolated: the panic
// is recovered, the rule is marked failed for the rest of the run, and the
// other rules' goroutines are unaffected.
func (o *Orchestrator) runBatch(ctx context.Context, batch []*events.Record, stats *RunStats) error {
	g, _ := errgroup.WithContext(ctx)

	for _, rule := range o.Rules {
		rule := rule
		if o.isFailed(rule.ID) {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					o.markFailed(rule.ID)
					log.Printf("warning: rule %s panicked during evaluation, disabling it for the rest of the run: %v", rule.ID, r)
				}
			}()
			for _, rec := range batch {
				matched := rule.Select(o.Aliases, rec, o.slots)
				if matched && !rule.Aggregating() {
					o.emit(rule, rec, false, stats)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// flush runs every non-failed rule's aggregation flush, converting any
// satisfied windows into alert rows. Rules are flushed in load order.
func (o *Orchestrator) flush(stats *RunStats) {
	for _, rule := range o.Rules {
		if !rule.Aggregating() || o.isFailed(rule.ID) {
			continue
		}
		for _, res := range rule.Flush(o.slots) {
			// An aggregate row spans a whole window rather than one record,
			// so the rule's %field% details template (which needs a single
			// record to resolve fields against) does not apply here; the
			// window's count and by-key stand in for it instead.
			row := AlertRow{
				Timestamp:   res.Anchor,
				RuleID:      rule.ID,
				RuleTitle:   rule.Title,
				RuleLevel:   string(rule.Level),
				Details:     fmt.Sprintf("count=%d key=%s", res.Count, res.Key),
				IsAggregate: true,
			}
			if o.Store.Add(row) {
				stats.AlertsEmitted++
			} else {
				stats.AlertsDeduped++
			}
		}
	}
}

// emit builds and stores an alert row for a direct (non-aggregating) match.
func (o *Orchestrator) emit(rule *sigma.RuleNode, rec *events.Record, aggregate bool, stats *RunStats) {
	row := AlertRow{
		Timestamp:   rec.Timestamp,
		Channel:     o.stringField(rec, o.opts.ChannelAlias),
		Computer:    o.stringField(rec, o.opts.ComputerAlias),
		RuleID:      rule.ID,
		RuleTitle:   rule.Title,
		RuleLevel:   string(rule.Level),
		SourceFile:  rec.SourceFile,
		IsAggregate: aggregate,
	}
	if eid, ok := o.eventID(rec); ok {
		row.EventID = eid
	}
	if rule.Details != "" {
		row.Details = sigma.RenderDetails(rule.Details, o.Aliases, rec)
	}
	if o.Store.Add(row) {
		stats.AlertsEmitted++
	} else {
		stats.AlertsDeduped++
	}
}

func (o *Orchestrator) stringField(rec *events.Record, alias string) string {
	v, _ := o.Aliases.GetString(alias, rec)
	return v
}

func (o *Orchestrator) eventID(rec *events.Record) (int64, bool) {
	v, ok := o.Aliases.Get(o.opts.EventIDAlias, rec)
	if !ok {
		return 0, false
	}
	f, ok := events.ToFloat64(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func (o *Orchestrator) isFailed(ruleID string) bool {
	o.failMu.Lock()
	defer o.failMu.Unlock()
	return o.failed[ruleID]
}

func (o *Orchestrator) markFailed(ruleID string) {
	o.failMu.Lock()
	defer o.failMu.Unlock()
	o.failed[ruleID] = true
}
