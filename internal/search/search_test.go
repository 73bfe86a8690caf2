package search

import (
	"testing"

	"github.com/evtxhunter/evtxhunter/internal/events"
)

func aliases() *events.AliasTable {
	a := events.NewAliasTable()
	a.Put("Channel", "Event.System.Channel")
	a.Put("EventID", "Event.System.EventID")
	a.Put("Computer", "Event.System.Computer")
	return a
}

func rec(channel string, eventID int, computer string) *events.Record {
	return events.New(map[string]interface{}{
		"Event": map[string]interface{}{
			"System": map[string]interface{}{
				"Channel":  channel,
				"EventID":  float64(eventID),
				"Computer": computer,
			},
		},
	}, "test.evtx")
}

func TestParseFilters(t *testing.T) {
	got := ParseFilters([]string{`Channel:Security`, `"EventID: 4625"`, "malformed"})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Field != "Channel" || got[0].Value != "Security" {
		t.Fatalf("got[0] = %+v", got[0])
	}
	if got[1].Field != "EventID" || got[1].Value != "4625" {
		t.Fatalf("got[1] = %+v", got[1])
	}
}

func TestRunKeywordMatch(t *testing.T) {
	records := []*events.Record{
		rec("Security", 4625, "HOST1"),
		rec("System", 7040, "HOST2"),
	}
	results, err := Run(records, aliases(), Options{Keywords: []string{"4625"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 || results[0].Channel != "Security" {
		t.Fatalf("results = %+v, want one Security match", results)
	}
}

func TestRunRegexMatch(t *testing.T) {
	records := []*events.Record{
		rec("Security", 4625, "HOST1"),
		rec("System", 7040, "HOST2"),
	}
	results, err := Run(records, aliases(), Options{Regex: `70\d\d`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 || results[0].Channel != "System" {
		t.Fatalf("results = %+v, want one System match", results)
	}
}

func TestRunAppliesFilters(t *testing.T) {
	records := []*events.Record{
		rec("Security", 4625, "HOST1"),
		rec("Security", 4625, "HOST2"),
	}
	results, err := Run(records, aliases(), Options{
		Keywords: []string{"4625"},
		Filters:  []Filter{{Field: "Computer", Value: "HOST2"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 || results[0].Hostname != "HOST2" {
		t.Fatalf("results = %+v, want only HOST2", results)
	}
}

func TestRunNoKeywordsOrRegexMatchesNothing(t *testing.T) {
	records := []*events.Record{rec("Security", 4625, "HOST1")}
	results, err := Run(records, aliases(), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want none", results)
	}
}

func TestRunInvalidRegex(t *testing.T) {
	records := []*events.Record{rec("Security", 4625, "HOST1")}
	if _, err := Run(records, aliases(), Options{Regex: "("}); err == nil {
		t.Fatal("Run() error = nil, want regex compile error")
	}
}
