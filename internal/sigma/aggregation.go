package sigma

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// AggOp is a comparison operator for an aggregation threshold.
type AggOp string

const (
	OpEQ AggOp = "=="
	OpGE AggOp = ">="
	OpLE AggOp = "<="
	OpGT AggOp = ">"
	OpLT AggOp = "<"
)

// Compare applies the operator to (observed, threshold).
func (op AggOp) Compare(observed, threshold int64) bool {
	switch op {
	case OpEQ:
		return observed == threshold
	case OpGE:
		return observed >= threshold
	case OpLE:
		return observed <= threshold
	case OpGT:
		return observed > threshold
	case OpLT:
		return observed < threshold
	default:
		return false
	}
}

// AggregationSpec is the compiled form of a rule's `| count(...) ...`
// pipe suffix plus its sibling `timeframe:` attribute. Absent entirely it
// means the rule has no aggregation at all; a present spec with
// HasTimeframe false means counting is global for the whole run.
type AggregationSpec struct {
	Field        string // empty when count() has no field argument
	ByKey        string // empty when there is no "by <key>" clause
	Op           AggOp
	Threshold    int64
	Timeframe    time.Duration
	HasTimeframe bool
}

// aggPattern recognizes `count([field]) [by key] op N`.
var aggPattern = regexp.MustCompile(`^\s*count\(\s*([A-Za-z0-9_.]*)\s*\)(?:\s+by\s+([A-Za-z0-9_.]+))?\s*(==|>=|<=|>|<)\s*(\d+)\s*$`)

// ParseAggregation parses the pipe suffix that follows `condition: expr |`.
// suffix should already have the leading "|" stripped.
func ParseAggregation(suffix string) (*AggregationSpec, error) {
	m := aggPattern.FindStringSubmatch(suffix)
	if m == nil {
		return nil, fmt.Errorf("malformed aggregation clause %q", suffix)
	}

	threshold, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid aggregation threshold %q: %w", m[4], err)
	}

	return &AggregationSpec{
		Field:     m[1],
		ByKey:     m[2],
		Op:        AggOp(m[3]),
		Threshold: threshold,
	}, nil
}

// timeframePattern recognizes an integer followed by an s/m/h/d unit.
var timeframePattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseTimeframe parses a `timeframe:` literal such as "2h" or "90s". A
// malformed value returns ok=false; per §4.5 the caller should log a
// warning and treat the rule as having no timeframe rather than reject it.
func ParseTimeframe(literal string) (d time.Duration, ok bool) {
	m := timeframePattern.FindStringSubmatch(literal)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, true
	case "m":
		return time.Duration(n) * time.Minute, true
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// WithTimeframe attaches a parsed timeframe to the spec.
func (a *AggregationSpec) WithTimeframe(d time.Duration) {
	a.Timeframe = d
	a.HasTimeframe = true
}
