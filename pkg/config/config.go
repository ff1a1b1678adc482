// Package config manages run configuration: connection strings, batch
// sizes, deadlines, and the like, loaded from YAML with environment-
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/convergedb/sync/pkg/errs"
)

// SourceConfig describes one source datastore's connection and behavior
// settings. The core treats ConnectionString as opaque bytes and never
// logs it unmasked.
type SourceConfig struct {
	Kind             string            `yaml:"kind"`
	ConnectionString string            `yaml:"connection_string"`
	SchemaPath       string            `yaml:"schema_path"`
	Tables           []string          `yaml:"tables,omitempty"`
	BatchSize        int               `yaml:"batch_size"`
	Options          map[string]string `yaml:"options,omitempty"`
}

// TargetConfig describes the destination store's connection settings.
type TargetConfig struct {
	ConnectionString string `yaml:"connection_string"`
	DryRun           bool   `yaml:"dry_run"`
}

// RunConfig is the top-level configuration for one sync run.
type RunConfig struct {
	Source              SourceConfig `yaml:"source"`
	Target               TargetConfig `yaml:"target"`
	DeadlineSeconds       int          `yaml:"deadline_seconds"`
	MaxRetries            int          `yaml:"max_retries"`
	RetryBaseDelayMillis  int          `yaml:"retry_base_delay_millis"`
	RetryMaxDelayMillis   int          `yaml:"retry_max_delay_millis"`
}

// Load reads a YAML run configuration from path, applying CONVERGEDB_-
// prefixed environment variable overrides for the connection strings
// (the only values an operator typically wants to override without
// editing the file).
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewConfigError(path, "failed to read config file", err)
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.NewConfigError(path, "failed to parse config file", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Source.BatchSize <= 0 {
		cfg.Source.BatchSize = 1000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBaseDelayMillis <= 0 {
		cfg.RetryBaseDelayMillis = 200
	}
	if cfg.RetryMaxDelayMillis <= 0 {
		cfg.RetryMaxDelayMillis = 30_000
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *RunConfig) {
	if v := os.Getenv("CONVERGEDB_SOURCE_DSN"); v != "" {
		cfg.Source.ConnectionString = v
	}
	if v := os.Getenv("CONVERGEDB_TARGET_DSN"); v != "" {
		cfg.Target.ConnectionString = v
	}
}

// Redact returns a copy of s safe to log: connection strings are never
// logged unmasked. It keeps the scheme and host, masking credentials
// and query parameters.
func Redact(dsn string) string {
	if dsn == "" {
		return ""
	}
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at > 0 && scheme > 0 && at > scheme {
		rest := dsn[at+1:]
		if q := strings.IndexByte(rest, '?'); q >= 0 {
			rest = rest[:q] + "?***"
		}
		return dsn[:scheme+3] + "***@" + rest
	}
	return "***"
}

// OptionInt reads key from a SourceConfig.Options map, parsing it as an
// int and falling back to fallback when the key is absent or malformed.
// Source build factories use this for the free-form per-source settings
// (max_empty_polls, standby_timeout_seconds, ...) that don't warrant their
// own RunConfig field.
func OptionInt(options map[string]string, key string, fallback int) int {
	v, ok := options[key]
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Option reads key from options, falling back to fallback when absent.
func Option(options map[string]string, key, fallback string) string {
	if v, ok := options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Values is a small dynamic key/value configuration store for
// components that read ad-hoc runtime settings (harness worker flags,
// feature toggles) rather than the structured RunConfig above.
type Values struct {
	mu   sync.RWMutex
	vals map[string]string
}

func NewValues() *Values {
	return &Values{vals: make(map[string]string)}
}

func (c *Values) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals[key]
}

func (c *Values) GetInt(key string, fallback int) int {
	v := c.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (c *Values) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = value
}

func (c *Values) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var b strings.Builder
	for k, v := range c.vals {
		fmt.Fprintf(&b, "%s=%s ", k, v)
	}
	return b.String()
}
