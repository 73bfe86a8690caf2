package main

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/evtxhunter/evtxhunter/internal/apiauth"
	"github.com/evtxhunter/evtxhunter/internal/config"
)

// Config is the evtxhunter-api server configuration. It embeds the same
// engine configuration scan uses (Scan runs once at startup to populate the
// alert store this API serves) plus the HTTP- and auth-specific settings
// unique to the API surface.
type Config struct {
	Engine  config.Config `yaml:"engine"`
	Records string        `yaml:"records"` // directory or file of decoded JSON/JSONL records to scan at startup
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Verbose bool          `yaml:"-"`
}

// ServerConfig contains HTTP listen settings.
type ServerConfig struct {
	Address string `yaml:"address"` // default: :8080
}

// AuthConfig contains authentication settings for the Alerts API.
type AuthConfig struct {
	JWTSecretEnv    string          `yaml:"jwt_secret_env"`     // env var holding the JWT HMAC secret (default: EVTXHUNTER_JWT_SECRET)
	StaticTokens    []apiauth.Token `yaml:"static_tokens"`      // name + bcrypt secret_hash pairs
	RateLimitPerMin int             `yaml:"rate_limit_per_min"` // per-identity request budget (default: 120)
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func loadAPIConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	c.Engine.Rules.Directory = firstNonEmpty(c.Engine.Rules.Directory, "./rules")
	c.Engine.Rules.MinLevel = firstNonEmpty(c.Engine.Rules.MinLevel, "informational")
	if c.Engine.BatchSize <= 0 {
		c.Engine.BatchSize = 5000
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = runtime.NumCPU()
	}
	c.Engine.Output.Sink = firstNonEmpty(c.Engine.Output.Sink, config.SinkMemory)
	c.Engine.Output.SQLitePath = firstNonEmpty(c.Engine.Output.SQLitePath, "./data/alerts.db")
	if len(c.Engine.Output.ClickHouse.Addresses) == 0 {
		c.Engine.Output.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	c.Engine.Output.ClickHouse.Database = firstNonEmpty(c.Engine.Output.ClickHouse.Database, "evtxhunter")
	c.Server.Address = firstNonEmpty(c.Server.Address, ":8080")
	c.Auth.JWTSecretEnv = firstNonEmpty(c.Auth.JWTSecretEnv, "EVTXHUNTER_JWT_SECRET")
	if c.Auth.RateLimitPerMin <= 0 {
		c.Auth.RateLimitPerMin = 120
	}
}

func (c *Config) validate() error {
	if c.Records == "" {
		return fmt.Errorf("records path is required")
	}
	return c.Engine.Validate()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
