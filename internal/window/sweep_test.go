package window

import (
	"testing"
	"time"
)

func at(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("time.Parse(%q) error = %v", s, err)
	}
	return tm
}

func TestSweepNoTimeframeGlobalCount(t *testing.T) {
	obs := []Observation{
		{Time: at(t, "2024-01-01T00:00:00Z")},
		{Time: at(t, "2024-01-01T01:00:00Z")},
		{Time: at(t, "2024-01-01T02:00:00Z")},
	}
	results := Sweep(obs, 3, false, 0, false, func(c int) bool { return c >= 3 })
	if len(results) != 1 || results[0].Count != 3 {
		t.Fatalf("results = %+v, want one result with count 3", results)
	}
}

func TestSweepNoTimeframeBelowThreshold(t *testing.T) {
	obs := []Observation{
		{Time: at(t, "2024-01-01T00:00:00Z")},
		{Time: at(t, "2024-01-01T01:00:00Z")},
	}
	results := Sweep(obs, 3, false, 0, false, func(c int) bool { return c >= 3 })
	if len(results) != 0 {
		t.Fatalf("results = %+v, want none", results)
	}
}

func TestSweepTimeframeSplitsWindows(t *testing.T) {
	obs := []Observation{
		{Time: at(t, "2024-01-01T00:00:00Z")},
		{Time: at(t, "2024-01-01T00:00:10Z")},
		{Time: at(t, "2024-01-01T00:00:20Z")},
		{Time: at(t, "2024-01-01T01:00:00Z")},
		{Time: at(t, "2024-01-01T01:00:10Z")},
		{Time: at(t, "2024-01-01T01:00:20Z")},
	}
	results := Sweep(obs, 3, true, time.Minute, false, func(c int) bool { return c >= 3 })
	if len(results) != 2 {
		t.Fatalf("results = %+v, want two separate 3-in-a-minute windows", results)
	}
}

func TestSweepDistinctFieldValues(t *testing.T) {
	obs := []Observation{
		{Time: at(t, "2024-01-01T00:00:00Z"), Value: "a"},
		{Time: at(t, "2024-01-01T00:00:01Z"), Value: "a"},
		{Time: at(t, "2024-01-01T00:00:02Z"), Value: "b"},
	}
	results := Sweep(obs, 2, false, 0, true, func(c int) bool { return c >= 2 })
	if len(results) != 1 || results[0].Count != 2 {
		t.Fatalf("results = %+v, want one result with 2 distinct values", results)
	}
}

func TestSweepDistinctFieldValuesSkipsNonQualifyingLeadingWindow(t *testing.T) {
	obs := []Observation{
		{Time: at(t, "2024-01-01T00:30:00Z"), Value: "1"},
		{Time: at(t, "2024-01-01T01:30:00Z"), Value: "1"},
		{Time: at(t, "2024-01-01T02:30:00Z"), Value: "2"},
		{Time: at(t, "2024-01-01T03:30:00Z"), Value: "3"},
	}
	results := Sweep(obs, 3, true, 2*time.Hour, true, func(c int) bool { return c >= 3 })
	if len(results) != 1 {
		t.Fatalf("results = %+v, want exactly one window", results)
	}
	if results[0].Count != 3 {
		t.Fatalf("results[0].Count = %d, want 3 distinct values", results[0].Count)
	}
	wantAnchor := at(t, "2024-01-01T01:30:00Z")
	if !results[0].Anchor.Equal(wantAnchor) {
		t.Fatalf("results[0].Anchor = %v, want %v (the leading 00:30 record has only two distinct values with it)", results[0].Anchor, wantAnchor)
	}
}

func TestSweepDisjointWindowsDoNotCascadeAcrossDenseRun(t *testing.T) {
	base := at(t, "2024-01-01T00:00:00Z")
	var obs []Observation
	for _, offset := range []time.Duration{
		30 * time.Minute, 90 * time.Minute, 150 * time.Minute, 210 * time.Minute,
		270 * time.Minute, 330 * time.Minute,
		19 * time.Hour, 20 * time.Hour, 21 * time.Hour, 22 * time.Hour,
	} {
		obs = append(obs, Observation{Time: base.Add(offset)})
	}

	results := Sweep(obs, 3, true, 2*time.Hour, false, func(c int) bool { return c >= 3 })
	if len(results) != 2 {
		t.Fatalf("results = %+v, want exactly two disjoint windows (one per run), not one per cursor shift", results)
	}
	for _, r := range results {
		if r.Count != 3 {
			t.Fatalf("result %+v has Count != 3", r)
		}
	}
}

func TestSweepEmpty(t *testing.T) {
	if got := Sweep(nil, 3, false, 0, false, func(c int) bool { return true }); got != nil {
		t.Fatalf("Sweep(nil) = %+v, want nil", got)
	}
}

func TestManagerAddKeysDelete(t *testing.T) {
	m := NewManager()
	m.Add("rule1", "host-a", Observation{Time: at(t, "2024-01-01T00:00:00Z")})
	m.Add("rule1", "host-b", Observation{Time: at(t, "2024-01-01T00:00:00Z")})
	m.Add("rule2", "_", Observation{Time: at(t, "2024-01-01T00:00:00Z")})

	keys := m.Keys("rule1")
	if len(keys) != 2 || keys[0] != "host-a" || keys[1] != "host-b" {
		t.Fatalf("Keys(rule1) = %v, want sorted [host-a host-b]", keys)
	}

	slot, ok := m.Slot("rule1", "host-a")
	if !ok || slot.Len() != 1 {
		t.Fatalf("Slot(rule1, host-a) ok=%v len=%d, want ok=true len=1", ok, slot.Len())
	}

	m.Delete("rule1")
	if keys := m.Keys("rule1"); keys != nil {
		t.Fatalf("Keys(rule1) after Delete = %v, want nil", keys)
	}
	if keys := m.Keys("rule2"); len(keys) != 1 {
		t.Fatalf("Keys(rule2) = %v, want rule2 untouched", keys)
	}

	m.DeleteAll()
	if keys := m.Keys("rule2"); keys != nil {
		t.Fatalf("Keys(rule2) after DeleteAll = %v, want nil", keys)
	}
}
