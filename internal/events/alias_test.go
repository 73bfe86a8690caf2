package events

import (
	"strings"
	"testing"
)

func treeRecord() *Record {
	return New(map[string]interface{}{
		"Event": map[string]interface{}{
			"System": map[string]interface{}{
				"EventID": float64(7040),
				"Channel": "System",
				"TimeCreated_attributes": map[string]interface{}{
					"SystemTime": "2024-01-02T03:04:05Z",
				},
			},
			"EventData": map[string]interface{}{
				"CommandLine": "powershell.exe -enc ZQBj",
			},
		},
	}, "/var/log/sample.evtx")
}

func TestAliasTableGet(t *testing.T) {
	table := NewAliasTable()
	table.Put("EventID", "Event.System.EventID")
	table.Put("Channel", "Event.System.Channel")

	rec := treeRecord()

	tests := []struct {
		name    string
		alias   string
		want    string
		wantOK  bool
	}{
		{"resolved alias hits", "EventID", "7040", true},
		{"resolved alias string field", "Channel", "System", true},
		{"unregistered alias falls back to literal path", "Event.EventData.CommandLine", "powershell.exe -enc ZQBj", true},
		{"missing intermediate segment", "Event.System.Nonexistent.Deeper", "", false},
		{"missing top-level alias", "NoSuchAlias", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.GetString(tt.alias, rec)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadAliasFile(t *testing.T) {
	src := strings.NewReader(`
# comment line, ignored
EventID,Event.System.EventID
Channel,Event.System.Channel

Computer,Event.System.Computer
`)
	table, err := Load(src)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path, _, ok := table.Resolve("EventID"); !ok || path != "Event.System.EventID" {
		t.Fatalf("Resolve(EventID) = (%q, %v), want Event.System.EventID, true", path, ok)
	}
}

func TestLoadAliasFileMalformedLine(t *testing.T) {
	_, err := Load(strings.NewReader("EventIDWithoutPath\n"))
	if err == nil {
		t.Fatal("expected error for malformed alias line")
	}
	if !strings.Contains(err.Error(), "expected") {
		t.Fatalf("errMsg = %q, want substring \"expected\"", err.Error())
	}
}

func TestResolveTimeNativePath(t *testing.T) {
	table := NewAliasTable()
	rec := treeRecord()

	ts, ok := table.ResolveTime(rec)
	if !ok {
		t.Fatal("ResolveTime() ok = false, want true")
	}
	if got := ts.Format("2006-01-02T15:04:05Z"); got != "2024-01-02T03:04:05Z" {
		t.Fatalf("ResolveTime() = %v, want 2024-01-02T03:04:05Z", got)
	}
}

func TestResolveTimeJSONFallback(t *testing.T) {
	table := NewAliasTable()
	rec := New(map[string]interface{}{
		"Event": map[string]interface{}{
			"EventData": map[string]interface{}{
				"@timestamp": "2024-05-06T07:08:09Z",
			},
		},
	}, "")

	ts, ok := table.ResolveTime(rec)
	if !ok {
		t.Fatal("ResolveTime() ok = false, want true")
	}
	if got := ts.Format("2006-01-02T15:04:05Z"); got != "2024-05-06T07:08:09Z" {
		t.Fatalf("ResolveTime() = %v, want 2024-05-06T07:08:09Z", got)
	}
}

func TestResolveTimeMissing(t *testing.T) {
	table := NewAliasTable()
	rec := New(map[string]interface{}{"Event": map[string]interface{}{}}, "")

	if _, ok := table.ResolveTime(rec); ok {
		t.Fatal("ResolveTime() ok = true, want false for record with no timestamp fields")
	}
}
