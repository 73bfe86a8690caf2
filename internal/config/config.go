// Package config loads and validates the engine's YAML configuration file:
// rule loading options, batching, the event-ID and alias files, and the
// alert output sink.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/evtxhunter/evtxhunter/internal/sigma"
)

// Config is the top-level engine configuration.
type Config struct {
	Rules         RulesConfig  `yaml:"rules"`
	BatchSize     int          `yaml:"batch_size"`
	Workers       int          `yaml:"workers"` // 0 = runtime.NumCPU()
	EventIDFilter string       `yaml:"eventid_filter"`
	AliasFile     string       `yaml:"alias_file"`
	Output        OutputConfig `yaml:"output"`
	Verbose       bool         `yaml:"-"`
}

// RulesConfig controls the Rule Loader.
type RulesConfig struct {
	Directory     string `yaml:"directory"`
	ExclusionFile string `yaml:"exclusion_file"`
	MinLevel      string `yaml:"min_level"`
	EnableNoisy   bool   `yaml:"enable_noisy"`
}

// OutputConfig selects the alert output sink.
type OutputConfig struct {
	Sink       string           `yaml:"sink"` // memory | sqlite | clickhouse
	SQLitePath string           `yaml:"sqlite_path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig addresses the ClickHouse sink when selected.
type ClickHouseConfig struct {
	Addresses []string `yaml:"addresses"`
	Database  string   `yaml:"database"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

// Sink name constants for OutputConfig.Sink.
const (
	SinkMemory     = "memory"
	SinkSQLite     = "sqlite"
	SinkClickHouse = "clickhouse"
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Rules.Directory == "" {
		c.Rules.Directory = "./rules"
	}
	if c.Rules.MinLevel == "" {
		c.Rules.MinLevel = "informational"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5000
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Output.Sink == "" {
		c.Output.Sink = SinkMemory
	}
	if c.Output.SQLitePath == "" {
		c.Output.SQLitePath = "./data/alerts.db"
	}
	if len(c.Output.ClickHouse.Addresses) == 0 {
		c.Output.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	if c.Output.ClickHouse.Database == "" {
		c.Output.ClickHouse.Database = "evtxhunter"
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Rules.Directory == "" {
		return fmt.Errorf("rules.directory is required")
	}
	if _, err := sigma.ParseLevel(c.Rules.MinLevel); err != nil {
		return fmt.Errorf("rules.min_level: %w", err)
	}
	switch c.Output.Sink {
	case SinkMemory, SinkSQLite, SinkClickHouse:
	default:
		return fmt.Errorf("output.sink must be one of memory, sqlite, clickhouse, got %q", c.Output.Sink)
	}
	if c.Output.Sink == SinkSQLite && c.Output.SQLitePath == "" {
		return fmt.Errorf("output.sqlite_path is required when output.sink is sqlite")
	}
	if c.Output.Sink == SinkClickHouse && len(c.Output.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("output.clickhouse.addresses is required when output.sink is clickhouse")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	return nil
}
