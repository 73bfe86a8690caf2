package sigma

import (
	"fmt"

	"github.com/evtxhunter/evtxhunter/internal/events"
)

// Selection is one named block of field predicates inside a rule's
// detection section. It is satisfied iff every field matcher is satisfied;
// a field missing from the record counts as not-satisfied, never as true.
type Selection struct {
	Name     string
	Matchers []*FieldMatcher
}

// CompileSelection builds a Selection from the raw YAML map for one
// selection name: `field[|mods]: pattern` or `field[|mods]: [patterns...]`.
// An empty clause (no fields) is rejected -- vacuous-true selections are
// not allowed.
func CompileSelection(name string, raw map[string]interface{}) (*Selection, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("selection %q has no field predicates", name)
	}

	sel := &Selection{Name: name}
	for key, value := range raw {
		patterns, err := normalizePatterns(value)
		if err != nil {
			return nil, fmt.Errorf("selection %q: %w", name, err)
		}
		fm, err := CompileField(key, patterns)
		if err != nil {
			return nil, fmt.Errorf("selection %q: %w", name, err)
		}
		sel.Matchers = append(sel.Matchers, fm)
	}
	return sel, nil
}

// normalizePatterns turns a YAML scalar or sequence value into a string
// pattern set, rendering each element through the same scalar form the
// field accessor uses so pattern comparisons stay symmetric with values.
func normalizePatterns(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []interface{}:
		patterns := make([]string, len(v))
		for i, item := range v {
			patterns[i] = events.ToStringForm(item)
		}
		return patterns, nil
	case nil:
		return nil, fmt.Errorf("pattern value is null")
	default:
		return []string{events.ToStringForm(v)}, nil
	}
}

// Evaluate reports whether every field matcher in the selection is
// satisfied against record, resolving each field name through aliases.
func (s *Selection) Evaluate(aliases *events.AliasTable, record *events.Record) bool {
	for _, fm := range s.Matchers {
		value, present := aliases.Get(fm.Field, record)
		if !fm.Match(value, present) {
			return false
		}
	}
	return true
}
