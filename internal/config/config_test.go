package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Output.Sink != SinkMemory {
		t.Fatalf("Output.Sink = %q, want memory", cfg.Output.Sink)
	}
	if cfg.Workers <= 0 {
		t.Fatalf("Workers = %d, want > 0", cfg.Workers)
	}
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	path := writeConfig(t, `
rules:
  directory: ./rules
batch_size: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.Rules.MinLevel != "informational" {
		t.Fatalf("MinLevel = %q, want informational default", cfg.Rules.MinLevel)
	}
}

func TestLoadRejectsUnknownSink(t *testing.T) {
	path := writeConfig(t, `
rules:
  directory: ./rules
output:
  sink: postgres
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want error for unknown sink")
	}
}

func TestValidateRejectsSQLiteSinkWithoutPath(t *testing.T) {
	cfg := Default()
	cfg.Output.Sink = SinkSQLite
	cfg.Output.SQLitePath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for missing sqlite_path")
	}
}

func TestLoadRejectsBadMinLevel(t *testing.T) {
	path := writeConfig(t, `
rules:
  directory: ./rules
  min_level: extreme
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want error for unknown min_level")
	}
}
