package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

func newTestConfigStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	return store
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, constant.Antigravity, cfg.DefaultProvider)
	assert.Equal(t, ThinkingHigh, cfg.DefaultThinking)
	assert.False(t, cfg.IncludeThoughts)
	assert.Equal(t, DefaultTimeoutMs, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"gemini provider", func(c *Config) { c.DefaultProvider = constant.Gemini }, false},
		{"unknown provider", func(c *Config) { c.DefaultProvider = "bing" }, true},
		{"unknown thinking level", func(c *Config) { c.DefaultThinking = "max" }, true},
		{"thinking none", func(c *Config) { c.DefaultThinking = ThinkingNone }, false},
		{"timeout below minimum", func(c *Config) { c.Timeout = 999 }, true},
		{"timeout at minimum", func(c *Config) { c.Timeout = 1000 }, false},
		{"timeout at maximum", func(c *Config) { c.Timeout = 300000 }, false},
		{"timeout above maximum", func(c *Config) { c.Timeout = 300001 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	store := newTestConfigStore(t)
	assert.Equal(t, DefaultConfig(), store.Load())
}

func TestLoadInvalidJSONGivesDefaults(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{broken"), 0o600))

	assert.Equal(t, DefaultConfig(), store.Load())
}

func TestLoadInvalidValuesGiveDefaults(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"defaultProvider":"bing"}`), 0o600))

	assert.Equal(t, DefaultConfig(), store.Load())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestConfigStore(t)

	cfg := DefaultConfig()
	cfg.DefaultProvider = constant.Gemini
	cfg.DefaultThinking = ThinkingLow
	cfg.IncludeThoughts = true
	cfg.Timeout = 120000
	cfg.Verbose = true
	require.NoError(t, store.Save(cfg))

	assert.Equal(t, cfg, store.Load())
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	store := newTestConfigStore(t)

	cfg := DefaultConfig()
	cfg.Timeout = 1
	assert.Error(t, store.Save(cfg))

	_, errStat := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(errStat), "an invalid config must not be persisted")
}

func TestUpdate(t *testing.T) {
	store := newTestConfigStore(t)

	updated, err := store.Update(func(cfg *Config) {
		cfg.Verbose = true
	})
	require.NoError(t, err)
	assert.True(t, updated.Verbose)
	assert.True(t, store.Load().Verbose)
}

func TestPartialFileKeepsDefaultsForMissingKeys(t *testing.T) {
	store := newTestConfigStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"defaultProvider":"gemini"}`), 0o600))

	cfg := store.Load()
	assert.Equal(t, constant.Gemini, cfg.DefaultProvider)
	assert.Equal(t, ThinkingHigh, cfg.DefaultThinking, "unset keys keep their defaults")
	assert.Equal(t, DefaultTimeoutMs, cfg.Timeout)
}
