// Package config handles dimos-bridge configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a value unset.
const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 9990
	DefaultCallTimeout      = 30 * time.Second
	DefaultDiscoveryTimeout = 10 * time.Second
)

// Environment variables that override the endpoint. They are read once,
// when the config is loaded.
const (
	EnvHost = "DIMOS_BRIDGE_HOST"
	EnvPort = "DIMOS_BRIDGE_PORT"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/dimos-bridge/config.yaml, /etc/dimos-bridge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dimos-bridge", "config.yaml"))
	}

	paths = append(paths, "/etc/dimos-bridge/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all dimos-bridge configuration.
type Config struct {
	Bridge    BridgeConfig `yaml:"bridge"`
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"` // text (default) or json

	// HistoryDB is the SQLite file tool calls are recorded in. Empty
	// disables call history.
	HistoryDB string `yaml:"history_db"`
}

// BridgeConfig defines how the remote MCP server is reached and which
// of its tools are registered.
type BridgeConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// CallTimeout bounds each tool call (default 30s).
	CallTimeout time.Duration `yaml:"call_timeout"`
	// DiscoveryTimeout bounds the startup tools/list exchange (default 10s).
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`

	// ToolPrefix namespaces registered tool names. Empty keeps the
	// remote names.
	ToolPrefix string `yaml:"tool_prefix"`
	// IncludeTools, when non-empty, limits registration to these names.
	IncludeTools []string `yaml:"include_tools"`
	// ExcludeTools skips these names when IncludeTools is empty.
	ExcludeTools []string `yaml:"exclude_tools"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Host:             DefaultHost,
			Port:             DefaultPort,
			CallTimeout:      DefaultCallTimeout,
			DiscoveryTimeout: DefaultDiscoveryTimeout,
		},
	}
}

// FromEnv returns the default configuration with environment overrides
// applied. It is used when no config file exists.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides the endpoint from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if host, ok := lookup(EnvHost); ok && host != "" {
		c.Bridge.Host = host
	}
	if raw, ok := lookup(EnvPort); ok && raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, raw)
		}
		c.Bridge.Port = port
	}
	return nil
}

// applyDefaults fills values a config file explicitly zeroed.
func (c *Config) applyDefaults() {
	if c.Bridge.Host == "" {
		c.Bridge.Host = DefaultHost
	}
	if c.Bridge.Port == 0 {
		c.Bridge.Port = DefaultPort
	}
	if c.Bridge.CallTimeout <= 0 {
		c.Bridge.CallTimeout = DefaultCallTimeout
	}
	if c.Bridge.DiscoveryTimeout <= 0 {
		c.Bridge.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port %d out of range (1-65535)", c.Bridge.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}
