// Package events provides the decoded-record model and the field accessor
// used to resolve SIGMA-style dotted aliases against it.
package events

import "time"

// Record is a single decoded Windows event, already shaped into a nested
// tree by an external decoder (binary .evtx or JSON/JSONL). It is read-only
// once produced and is borrowed by every rule during its evaluation pass.
type Record struct {
	// Data is the decoded tree: nested maps, slices, and scalars, with the
	// conventional shape Event.System.*, Event.EventData.*, Event.UserData.*.
	Data map[string]interface{}

	// Flattened is a lowercased flattened string form of the whole record,
	// built once, used for whole-record substring scans (keyword search,
	// "contains" modifiers that fall back to full-record tests).
	Flattened string

	// SourceFile is the path the record was decoded from.
	SourceFile string

	// Timestamp is the record's resolved event time in UTC.
	Timestamp time.Time

	// TimeMissing is set when timestamp extraction failed; the sentinel
	// "missing-time" marker from the accessor's contract. Non-aggregating
	// rules still evaluate such a record; aggregating rules skip it.
	TimeMissing bool
}

// New builds a Record from an already-decoded tree, computing the
// flattened string form eagerly so later matching never re-walks the tree.
func New(data map[string]interface{}, sourceFile string) *Record {
	r := &Record{
		Data:       data,
		SourceFile: sourceFile,
	}
	r.Flattened = flatten(data)
	return r
}

// flatten walks the decoded tree depth-first and joins every scalar's
// string form with spaces, lowercased, for substring scanning.
func flatten(v interface{}) string {
	var sb []byte
	sb = appendFlat(sb, v)
	return toLowerBytes(sb)
}

func appendFlat(dst []byte, v interface{}) []byte {
	switch val := v.(type) {
	case map[string]interface{}:
		for _, key := range sortedKeys(val) {
			dst = appendFlat(dst, val[key])
			dst = append(dst, ' ')
		}
	case []interface{}:
		for _, item := range val {
			dst = appendFlat(dst, item)
			dst = append(dst, ' ')
		}
	case nil:
		// skip
	default:
		dst = append(dst, scalarString(val)...)
	}
	return dst
}

// sortedKeys returns a map's keys in sorted order so the flattened form is
// deterministic across runs (useful for reproducible test fixtures).
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// small maps, insertion sort is fine and avoids importing sort here
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func toLowerBytes(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
