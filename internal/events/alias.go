package events

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// AliasTable maps a short alias name (e.g. "EventID") to the canonical
// dotted path it resolves to (e.g. "Event.System.EventID"), pre-split into
// segments so the hot path never re-splits a string.
type AliasTable struct {
	paths    map[string]string
	segments map[string][]string
}

// NewAliasTable returns an empty table. Use Load or LoadFile to populate it,
// or Put to add entries programmatically (tests, defaults).
func NewAliasTable() *AliasTable {
	return &AliasTable{
		paths:    make(map[string]string),
		segments: make(map[string][]string),
	}
}

// Put registers a single alias -> dotted-path mapping.
func (t *AliasTable) Put(alias, dottedPath string) {
	t.paths[alias] = dottedPath
	t.segments[alias] = strings.Split(dottedPath, ".")
}

// LoadFile reads an eventkey_alias.txt-style file: one `<alias>,<dotted-path>`
// pair per line, blank lines and lines starting with '#' ignored.
func LoadFile(path string) (*AliasTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alias file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses the alias table format from a reader.
func Load(r io.Reader) (*AliasTable, error) {
	t := NewAliasTable()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.SplitN(text, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("alias file line %d: expected \"<alias>,<path>\", got %q", line, text)
		}
		alias := strings.TrimSpace(parts[0])
		path := strings.TrimSpace(parts[1])
		if alias == "" || path == "" {
			return nil, fmt.Errorf("alias file line %d: empty alias or path", line)
		}
		t.Put(alias, path)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	return t, nil
}

// Resolve returns the canonical dotted path and its pre-split segments for
// an alias. ok is false when the alias is unknown, in which case callers
// should fall back to treating the alias itself as a literal dotted path
// (this is how bare field names like "CommandLine" work without an entry
// in eventkey_alias.txt).
func (t *AliasTable) Resolve(alias string) (path string, segments []string, ok bool) {
	segs, found := t.segments[alias]
	if !found {
		return "", nil, false
	}
	return t.paths[alias], segs, true
}

// Get resolves alias against record and returns the scalar at that path, or
// (nil, false) if any intermediate segment is missing. A registered alias is
// preferred; an unregistered alias is walked as a literal dotted path.
func (t *AliasTable) Get(alias string, record *Record) (interface{}, bool) {
	_, segments, ok := t.Resolve(alias)
	if !ok {
		segments = strings.Split(alias, ".")
	}
	return walk(record.Data, segments)
}

// GetByPath bypasses the alias map entirely and walks a dotted path as
// given.
func (t *AliasTable) GetByPath(path string, record *Record) (interface{}, bool) {
	return walk(record.Data, strings.Split(path, "."))
}

// GetString is Get with the scalar rendered to its string form; missing
// fields return ("", false).
func (t *AliasTable) GetString(alias string, record *Record) (string, bool) {
	v, ok := t.Get(alias, record)
	if !ok {
		return "", false
	}
	return scalarString(v), true
}

// walk descends a decoded tree one segment at a time. A missing
// intermediate segment yields (nil, false); numeric scalars are returned
// as-is, strings without surrounding quotes (the decoder never adds them).
func walk(node interface{}, segments []string) (interface{}, bool) {
	cur := node
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, present := m[seg]
		if !present {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
