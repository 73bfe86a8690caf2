// Package query compiles and evaluates expr-lang filter expressions over
// alert rows, used by the Alerts API's "q" parameter.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/evtxhunter/evtxhunter/internal/detect"
)

// Filter compiles and evaluates an expr-lang expression against AlertRow
// fields. Field names are lowercase to match the query string a caller
// would type: timestamp, event_id, channel, computer, rule_id, rule_title,
// rule_level, details, source_file, is_aggregate.
type Filter struct {
	expression string
	program    *vm.Program
}

// sampleEnv is the typed environment used for compile-time validation.
func sampleEnv() map[string]any {
	return map[string]any{
		"timestamp":    time.Time{},
		"event_id":     int64(0),
		"channel":      "",
		"computer":     "",
		"rule_id":      "",
		"rule_title":   "",
		"rule_level":   "",
		"details":      "",
		"source_file":  "",
		"is_aggregate": false,
	}
}

// Compile parses and type-checks a filter expression. An empty expression
// compiles to a filter that matches everything.
func Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &Filter{expression: expression}, nil
	}

	program, err := expr.Compile(expression, expr.Env(sampleEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expression, err)
	}

	return &Filter{expression: expression, program: program}, nil
}

// Match evaluates the filter against a row. A nil program (empty
// expression) always matches.
func (f *Filter) Match(row *detect.AlertRow) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	result, err := expr.Run(f.program, envFromRow(row))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.expression, err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q did not evaluate to a boolean", f.expression)
	}
	return matched, nil
}

// Expression returns the original expression string.
func (f *Filter) Expression() string {
	return f.expression
}

func envFromRow(row *detect.AlertRow) map[string]any {
	return map[string]any{
		"timestamp":    row.Timestamp,
		"event_id":     row.EventID,
		"channel":      row.Channel,
		"computer":     row.Computer,
		"rule_id":      row.RuleID,
		"rule_title":   row.RuleTitle,
		"rule_level":   row.RuleLevel,
		"details":      row.Details,
		"source_file":  row.SourceFile,
		"is_aggregate": row.IsAggregate,
	}
}
