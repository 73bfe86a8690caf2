package sigma

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/evtxhunter/evtxhunter/internal/events"
	"github.com/evtxhunter/evtxhunter/internal/window"
)

// RawRule is the YAML shape of a rule file on disk, decoded before any
// compilation happens. Detection holds the selections plus the
// `condition`/`timeframe` keys verbatim, since selection names are
// arbitrary and can't be declared as struct fields.
type RawRule struct {
	Title          string                 `yaml:"title"`
	ID             string                 `yaml:"id"`
	Status         string                 `yaml:"status"`
	Level          string                 `yaml:"level"`
	Description    string                 `yaml:"description"`
	Author         string                 `yaml:"author"`
	Tags           []string               `yaml:"tags"`
	References     []string               `yaml:"references"`
	FalsePositives []string               `yaml:"falsepositives"`
	Detection      map[string]interface{} `yaml:"detection"`
	Details        string                 `yaml:"details"`
}

// RuleNode is a fully compiled detection rule: its selections, the boolean
// condition over them, and an optional aggregation. Once InitRule returns
// successfully a RuleNode is immutable and safe to evaluate concurrently
// against many records -- any per-run mutable state (the aggregation's
// observation counts) lives outside it, in a window.Manager the caller
// supplies to Select and Flush.
type RuleNode struct {
	ID             string
	Title          string
	Description    string
	Author         string
	Level          Level
	Status         Status
	Tags           []string
	References     []string
	FalsePositives []string
	FilePath       string
	Details        string

	Selections     map[string]*Selection
	SelectionNames []string
	Condition      ConditionTree
	Agg            *AggregationSpec
}

// InitRule compiles a RawRule into a RuleNode. Every validation failure is
// accumulated rather than returned on the first one, so a rule author
// fixing one file sees every mistake in it at once.
func InitRule(raw *RawRule, filePath string) (*RuleNode, []error) {
	var errs []error

	r := &RuleNode{
		ID:             raw.ID,
		Title:          raw.Title,
		Description:    raw.Description,
		Author:         raw.Author,
		Tags:           raw.Tags,
		References:     raw.References,
		FalsePositives: raw.FalsePositives,
		FilePath:       filePath,
		Details:        raw.Details,
		Status:         StatusStable,
		Selections:     make(map[string]*Selection),
	}

	if strings.TrimSpace(raw.Title) == "" {
		errs = append(errs, fmt.Errorf("rule %s: title is required", filePath))
	}
	if strings.TrimSpace(raw.ID) == "" {
		errs = append(errs, fmt.Errorf("rule %s: id is required", filePath))
	}
	if raw.Status != "" {
		r.Status = Status(raw.Status)
	}

	if lvl, err := ParseLevel(raw.Level); err != nil {
		errs = append(errs, fmt.Errorf("rule %s: %w", filePath, err))
	} else {
		r.Level = lvl
	}

	if raw.Detection == nil {
		errs = append(errs, fmt.Errorf("rule %s: detection block is required", filePath))
		return nil, errs
	}

	conditionRaw, hasCondition := raw.Detection["condition"].(string)
	conditionRaw = strings.TrimSpace(conditionRaw)

	var selectionNames []string
	for name, raw := range raw.Detection {
		if name == "condition" || name == "timeframe" {
			continue
		}
		m, ok := raw.(map[string]interface{})
		if !ok {
			errs = append(errs, fmt.Errorf("rule %s: selection %q must be a mapping", filePath, name))
			continue
		}
		sel, err := CompileSelection(name, m)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", filePath, err))
			continue
		}
		r.Selections[name] = sel
		selectionNames = append(selectionNames, name)
	}
	sort.Strings(selectionNames)
	r.SelectionNames = selectionNames

	// No condition: is only accepted when there is exactly one selection,
	// which then stands in as the implicit condition; zero or multiple
	// selections without an explicit condition are rejected.
	if !hasCondition || conditionRaw == "" {
		switch len(selectionNames) {
		case 0:
			errs = append(errs, fmt.Errorf("rule %s: detection has no selections", filePath))
		case 1:
			conditionRaw = selectionNames[0]
			hasCondition = true
		default:
			errs = append(errs, fmt.Errorf("rule %s: detection.condition is required with multiple selections", filePath))
		}
	}

	if hasCondition && conditionRaw != "" {
		mainExpr, aggSuffix, hasAgg := splitConditionPipe(conditionRaw)

		if tree, err := CompileCondition(mainExpr, selectionNames); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", filePath, err))
		} else {
			r.Condition = tree
		}

		if hasAgg {
			spec, err := ParseAggregation(aggSuffix)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %s: %w", filePath, err))
			} else {
				if tfRaw, ok := raw.Detection["timeframe"].(string); ok && tfRaw != "" {
					if d, ok := ParseTimeframe(tfRaw); ok {
						spec.WithTimeframe(d)
					} else {
						log.Printf("warning: rule %s: invalid timeframe %q ignored, counting over the whole run", filePath, tfRaw)
					}
				}
				r.Agg = spec
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return r, nil
}

// splitConditionPipe splits a condition string on its first top-level `|`,
// separating the boolean expression from an optional aggregation suffix.
func splitConditionPipe(condition string) (expr, suffix string, hasSuffix bool) {
	idx := strings.Index(condition, "|")
	if idx < 0 {
		return strings.TrimSpace(condition), "", false
	}
	return strings.TrimSpace(condition[:idx]), strings.TrimSpace(condition[idx+1:]), true
}

// Select evaluates every selection against record, then the condition tree
// over those results. A plain rule's return value is the final verdict. An
// aggregating rule additionally records an observation into slots when the
// pre-pipe condition is satisfied -- its return value only means "this
// record contributed to the count", not "raise an alert now"; the caller
// must call Flush to learn whether any window's threshold was met.
func (r *RuleNode) Select(aliases *events.AliasTable, record *events.Record, slots *window.Manager) bool {
	results := make(map[string]bool, len(r.Selections))
	for name, sel := range r.Selections {
		results[name] = sel.Evaluate(aliases, record)
	}
	if !r.Condition.Evaluate(results) {
		return false
	}

	if r.Agg == nil {
		return true
	}

	key := "_"
	if r.Agg.ByKey != "" {
		if v, ok := aliases.GetString(r.Agg.ByKey, record); ok {
			key = v
		}
	}
	value := ""
	if r.Agg.Field != "" {
		if v, ok := aliases.GetString(r.Agg.Field, record); ok {
			value = v
		}
	}
	slots.Add(r.ID, key, window.Observation{Time: record.Timestamp, Value: value})
	return true
}

// Aggregating reports whether this rule needs a Flush pass to surface its
// alerts, as opposed to alerting directly from Select's return value.
func (r *RuleNode) Aggregating() bool { return r.Agg != nil }

// Flush sweeps every by-key slot this rule has accumulated in slots and
// returns the windows that satisfied the aggregation's comparator. It is a
// no-op for a non-aggregating rule.
func (r *RuleNode) Flush(slots *window.Manager) []window.AggResult {
	if r.Agg == nil {
		return nil
	}

	var out []window.AggResult
	for _, key := range slots.Keys(r.ID) {
		slot, ok := slots.Slot(r.ID, key)
		if !ok {
			continue
		}
		threshold := r.Agg.Threshold
		results := window.Sweep(
			slot.Snapshot(),
			int(threshold),
			r.Agg.HasTimeframe,
			r.Agg.Timeframe,
			r.Agg.Field != "",
			func(count int) bool { return r.Agg.Op.Compare(int64(count), threshold) },
		)
		for i := range results {
			results[i].Key = key
		}
		out = append(out, results...)
	}
	return out
}
