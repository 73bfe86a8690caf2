package window

import (
	"sort"
	"time"
)

// AggResult is one satisfied aggregation window: the by-key it was counted
// under, the count (or distinct-value count, when the aggregation names a
// field) that satisfied the operator, and the timestamp the window is
// anchored at (its earliest member).
type AggResult struct {
	Key    string
	Count  int
	Anchor time.Time
}

// Sweep walks a rule's observations for one by-key in time order and emits
// an AggResult each time a window satisfies the aggregation's comparator.
//
// Without a timeframe, counting is global: the whole observation set is
// compared against the threshold once, at the end.
//
// With a timeframe, a two-cursor scan slides a start/check pair across the
// sorted observations. check begins at start + n - 1 and grows while the
// span from start to check still fits the timeframe; once it no longer
// fits, the window [start, check) is judged. A satisfied window is
// emitted, but check -- the observation that just fell outside the
// timeframe -- becomes the next start, and the window it seeds may be
// nothing more than the tail of the very same dense run rather than a
// second, independent burst. Sweep tells the two apart by the gap between
// check and the window it just closed: inside the timeframe, it's a
// continuation and its emission is suppressed; wider than the timeframe,
// it's a fresh burst and emits normally. This keeps one dense run of
// matches from cascading into an alert per cursor shift, while still
// reporting every genuinely disjoint window. hasField switches the
// emitted count from "records seen" to "distinct field values seen",
// matching count(field) semantics; the distinct set is reseeded over
// [start, check) every time the cursors are (re)anchored and grows as check
// advances, so it always holds exactly the values of the window being
// judged: its leading members are never dropped, and the observation that
// fell outside the timeframe is never counted.
func Sweep(observations []Observation, n int, hasTimeframe bool, timeframe time.Duration, hasField bool, satisfies func(count int) bool) []AggResult {
	if len(observations) == 0 {
		return nil
	}

	sorted := make([]Observation, len(observations))
	copy(sorted, observations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	windowSize := n
	if windowSize < 1 {
		windowSize = 1
	}

	var results []AggResult
	start := 0
	check := start + windowSize - 1
	var seen []string
	suppressNext := false

	contains := func(v string) bool {
		for _, x := range seen {
			if x == v {
				return true
			}
		}
		return false
	}
	add := func(v string) {
		if !contains(v) {
			seen = append(seen, v)
		}
	}
	// seedSeen repopulates the distinct-value set from sorted[l..r]
	// inclusive (r clipped to the slice), so a freshly (re)anchored
	// window never depends on incremental adds alone for the members it
	// starts with.
	seedSeen := func(l, r int) {
		seen = nil
		if r >= len(sorted) {
			r = len(sorted) - 1
		}
		for i := l; i <= r && i < len(sorted); i++ {
			add(sorted[i].Value)
		}
	}
	resetCheck := func() { check = start + windowSize - 1 }

	seedSeen(start, check-1)

	for {
		if start >= len(sorted) || check >= len(sorted) {
			last := sorted[len(sorted)-1]
			diff := last.Time.Sub(sorted[start].Time)
			count := len(sorted) - start
			seedSeen(start, len(sorted)-1)
			if hasTimeframe && diff > timeframe {
				count = 1
			}
			result := count
			if hasField {
				result = len(seen)
			}
			if !suppressNext && satisfies(result) {
				results = append(results, AggResult{Count: result, Anchor: sorted[start].Time})
			}
			return results
		}

		cur := sorted[check]
		diff := cur.Time.Sub(sorted[start].Time)

		if hasTimeframe && diff > timeframe {
			count := check - start
			result := count
			if hasField {
				result = len(seen)
			}
			if !satisfies(result) {
				suppressNext = false
				start++
				resetCheck()
				seedSeen(start, check-1)
				continue
			}
			if !suppressNext {
				results = append(results, AggResult{Count: result, Anchor: sorted[start].Time})
			}
			// check just fell outside the timeframe measured from
			// start; if it's still within the timeframe of the window
			// that just closed (check-1), the window it seeds is that
			// same run continuing, not a new disjoint one.
			suppressNext = check > 0 && cur.Time.Sub(sorted[check-1].Time) <= timeframe
			start = check
			resetCheck()
			seedSeen(start, check-1)
			continue
		}

		check++
		add(cur.Value)
	}
}
