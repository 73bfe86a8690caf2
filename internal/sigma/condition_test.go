package sigma

import (
	"strings"
	"testing"
)

func eval(t *testing.T, expr string, names []string, results map[string]bool) bool {
	t.Helper()
	tree, err := CompileCondition(expr, names)
	if err != nil {
		t.Fatalf("CompileCondition(%q) error = %v", expr, err)
	}
	return tree.Evaluate(results)
}

func TestCompileConditionBasic(t *testing.T) {
	names := []string{"selection"}
	if !eval(t, "selection", names, map[string]bool{"selection": true}) {
		t.Fatal("expected selection alone to pass through as root")
	}
}

func TestCompileConditionNegation(t *testing.T) {
	names := []string{"selection"}
	tests := []struct {
		value bool
		want  bool
	}{
		{true, false},
		{false, true},
	}
	for _, tt := range tests {
		got := eval(t, "not selection", names, map[string]bool{"selection": tt.value})
		if got != tt.want {
			t.Fatalf("not selection with selection=%v = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestCompileConditionAndOrPrecedence(t *testing.T) {
	// "a or b and c" should parse as "a or (b and c)" since and binds tighter.
	names := []string{"a", "b", "c"}
	results := map[string]bool{"a": true, "b": false, "c": true}
	if !eval(t, "a or b and c", names, results) {
		t.Fatal("expected a=true to satisfy a or (b and c)")
	}
	results2 := map[string]bool{"a": false, "b": true, "c": false}
	if eval(t, "a or b and c", names, results2) {
		t.Fatal("expected a=false, b and c=false to fail a or (b and c)")
	}
}

func TestCompileConditionDeMorgan(t *testing.T) {
	names := []string{"a", "b"}
	combos := []map[string]bool{
		{"a": true, "b": true},
		{"a": true, "b": false},
		{"a": false, "b": true},
		{"a": false, "b": false},
	}
	for _, r := range combos {
		notAnd := eval(t, "not (a and b)", names, r)
		orNots := eval(t, "(not a) or (not b)", names, r)
		if notAnd != orNots {
			t.Fatalf("De Morgan mismatch for %v: not(a and b)=%v, (not a) or (not b)=%v", r, notAnd, orNots)
		}
		notOr := eval(t, "not (a or b)", names, r)
		andNots := eval(t, "(not a) and (not b)", names, r)
		if notOr != andNots {
			t.Fatalf("De Morgan mismatch for %v: not(a or b)=%v, (not a) and (not b)=%v", r, notOr, andNots)
		}
	}
}

func TestCompileConditionAllOfPrefix(t *testing.T) {
	names := []string{"sus1", "sus2", "sus3", "filter_a", "filter_b"}

	allMatch := map[string]bool{"sus1": true, "sus2": true, "sus3": true, "filter_a": false, "filter_b": false}
	if !eval(t, "all of sus* and not 1 of filter_*", names, allMatch) {
		t.Fatal("S3: expected match when all sus* satisfied and no filter_* satisfied")
	}

	withFilter := map[string]bool{"sus1": true, "sus2": true, "sus3": true, "filter_a": true, "filter_b": false}
	if eval(t, "all of sus* and not 1 of filter_*", names, withFilter) {
		t.Fatal("S3: expected no match when filter_a also satisfied")
	}
}

func TestCompileConditionOfPrefixNoMatch(t *testing.T) {
	_, err := CompileCondition("all of nope*", []string{"selection"})
	if err == nil {
		t.Fatal("expected error when prefix matches no selection names")
	}
}

func TestCompileConditionUndefinedReference(t *testing.T) {
	_, err := CompileCondition("selection1 and selection2", []string{"selection1"})
	if err == nil || !strings.Contains(err.Error(), "selection2 is not defined") {
		t.Fatalf("error = %v, want it to mention selection2 is not defined", err)
	}
}

func TestCompileConditionUnbalancedParens(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"missing close", "(a and b", "')' was expected but not found"},
		{"stray close", "a and b)", "'(' was expected but not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileCondition(tt.expr, []string{"a", "b"})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestCompileConditionIllegalOperatorPlacement(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"leading and", "and a", "An illegal logical operator was found"},
		{"trailing or", "a or", "An illegal logical operator was found"},
		{"back to back", "a and and b", "The use of a logical operator was wrong"},
		{"double not", "a and not not b", "Not is continuous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileCondition(tt.expr, []string{"a", "b"})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestCompileConditionNestedParens(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	results := map[string]bool{"a": true, "b": false, "c": true, "d": true}
	if !eval(t, "(a or b) and (c or d)", names, results) {
		t.Fatal("expected nested parens to evaluate correctly")
	}
	if eval(t, "(a and b) and (c or d)", names, results) {
		t.Fatal("expected (a and b) to fail since b is false")
	}
}
