// Package recordio loads already-decoded event records from JSON or JSONL
// files on disk. Binary .evtx decoding stays an external collaborator
// (§6); this package only reads the JSON shape a decoder would have
// produced: a JSON array of objects per file, or one object per line.
package recordio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/evtxhunter/evtxhunter/internal/events"
)

// LoadPath loads every record under path. A directory is walked
// recursively for .json and .jsonl files; a single file is loaded
// directly regardless of extension. aliases resolves each record's event
// time; records whose timestamp cannot be resolved are still returned,
// with TimeMissing set.
func LoadPath(path string, aliases *events.AliasTable) ([]*events.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(p))
			if ext == ".json" || ext == ".jsonl" {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	} else {
		files = []string{path}
	}

	var out []*events.Record
	for _, f := range files {
		records, err := loadFile(f, aliases)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		out = append(out, records...)
	}
	return out, nil
}

// loadFile decodes one file, either a single JSON array of objects or one
// JSON object per line (JSONL), determined by the first non-whitespace
// byte.
func loadFile(path string, aliases *events.AliasTable) ([]*events.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	first, err := peekFirstNonSpace(reader)
	if err != nil {
		return nil, fmt.Errorf("peek file: %w", err)
	}

	if first == '[' {
		var raw []map[string]interface{}
		if err := json.NewDecoder(reader).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
		out := make([]*events.Record, 0, len(raw))
		for _, data := range raw {
			out = append(out, buildRecord(data, path, aliases))
		}
		return out, nil
	}

	var out []*events.Record
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, buildRecord(data, path, aliases))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return out, nil
}

func buildRecord(data map[string]interface{}, path string, aliases *events.AliasTable) *events.Record {
	rec := events.New(data, path)
	if ts, ok := aliases.ResolveTime(rec); ok {
		rec.Timestamp = ts
	} else {
		rec.TimeMissing = true
	}
	return rec
}

func peekFirstNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if err := r.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
