// Package config provides configuration management for the grounded-search
// MCP server. Settings live in a JSON file under the per-OS user config
// directory. Loading never fails hard: invalid or missing content degrades to
// defaults so bad local state cannot block usage.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

// AppDirName is the directory under the user config dir holding the config
// and token files.
const AppDirName = "grounded-search-mcp"

// Thinking levels accepted by DefaultThinking.
const (
	ThinkingHigh = "high"
	ThinkingLow  = "low"
	ThinkingNone = "none"
)

const (
	// DefaultTimeoutMs bounds every upstream search call.
	DefaultTimeoutMs = 60000

	minTimeoutMs = 1000
	maxTimeoutMs = 300000
)

// Config represents the application's configuration, loaded from a JSON file.
type Config struct {
	// DefaultProvider is tried first by the search orchestrator.
	DefaultProvider string `json:"defaultProvider"`

	// DefaultThinking is the thinking level requested from providers that
	// support it: "high", "low" or "none".
	DefaultThinking string `json:"defaultThinking"`

	// IncludeThoughts surfaces the model's thinking trace in responses.
	IncludeThoughts bool `json:"includeThoughts"`

	// Timeout is the upstream search timeout in milliseconds.
	Timeout int `json:"timeout"`

	// Verbose enables debug-level logging.
	Verbose bool `json:"verbose"`

	// ProxyURL is an optional proxy for all outbound requests
	// (socks5://, http:// or https://).
	ProxyURL string `json:"proxyUrl,omitempty"`
}

// DefaultConfig returns a config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		DefaultProvider: constant.Antigravity,
		DefaultThinking: ThinkingHigh,
		IncludeThoughts: false,
		Timeout:         DefaultTimeoutMs,
		Verbose:         false,
	}
}

// Validate checks field values, returning a descriptive error for the first
// invalid one.
func (c *Config) Validate() error {
	if !constant.IsProvider(c.DefaultProvider) {
		return fmt.Errorf("defaultProvider must be %q or %q, got %q", constant.Antigravity, constant.Gemini, c.DefaultProvider)
	}
	switch c.DefaultThinking {
	case ThinkingHigh, ThinkingLow, ThinkingNone:
	default:
		return fmt.Errorf("defaultThinking must be %q, %q or %q, got %q", ThinkingHigh, ThinkingLow, ThinkingNone, c.DefaultThinking)
	}
	if c.Timeout < minTimeoutMs || c.Timeout > maxTimeoutMs {
		return fmt.Errorf("timeout must be between %d and %d milliseconds, got %d", minTimeoutMs, maxTimeoutMs, c.Timeout)
	}
	return nil
}

// Store reads and writes the config file.
type Store struct {
	path string
}

// NewStore returns a store bound to the given config file path. An empty path
// selects the default location under the user config directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve user config dir: %w", err)
		}
		path = filepath.Join(dir, AppDirName, "config.json")
	}
	return &Store{path: path}, nil
}

// Path returns the absolute path of the backing config file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the config file, validates it, and returns the result.
// Missing files and invalid content both degrade to defaults; the latter is
// logged so the user can repair the file.
func (s *Store) Load() *Config {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("config: read %s failed, using defaults: %v", s.path, err)
		}
		return DefaultConfig()
	}

	cfg := DefaultConfig()
	if errUnmarshal := json.Unmarshal(data, cfg); errUnmarshal != nil {
		log.Warnf("config: %s is not valid JSON, using defaults: %v", s.path, errUnmarshal)
		return DefaultConfig()
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		log.Warnf("config: %s is invalid, using defaults: %v", s.path, errValidate)
		return DefaultConfig()
	}
	return cfg
}

// Save validates and persists the config atomically: the content is written
// to a temporary file which is then renamed over the real path.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: refusing to save invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if errWrite := os.WriteFile(tmpPath, data, 0o600); errWrite != nil {
		return fmt.Errorf("config: write temp file: %w", errWrite)
	}
	if errRename := os.Rename(tmpPath, s.path); errRename != nil {
		return fmt.Errorf("config: rename temp file: %w", errRename)
	}
	return nil
}

// Update loads the current config, applies fn, validates and saves.
func (s *Store) Update(fn func(*Config)) (*Config, error) {
	cfg := s.Load()
	fn(cfg)
	if err := s.Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
