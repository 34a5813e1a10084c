package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:5001/api/v1", cfg.API.BaseURL)
	assert.Equal(t, "https://grok.com", cfg.API.Origin)
	assert.Equal(t, 2*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 5*time.Second, cfg.GetRetryDelay())
	assert.Equal(t, 10, cfg.GetMaxRetries())
	assert.Equal(t, ScheduleRearm, cfg.Bridge.Schedule)
	assert.Equal(t, `button[aria-label="Share conversation"]`, cfg.Page.Selectors.ShareButton)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GROKRELAY_API_BASE", "")
	t.Setenv("GROKRELAY_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "nested", "grokrelay.yaml")

	cfg := DefaultConfig()
	cfg.Bridge.Schedule = ScheduleFixed
	cfg.Bridge.MaxRetries = 3
	cfg.Page.Selectors.Input = "#prompt"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ScheduleFixed, loaded.Bridge.Schedule)
	assert.Equal(t, 3, loaded.GetMaxRetries())
	assert.Equal(t, "#prompt", loaded.Page.Selectors.Input)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Page.URL, cfg.Page.URL)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grokrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  poll_interval: 500ms\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, 5*time.Second, cfg.GetRetryDelay())
	assert.Equal(t, "textarea", cfg.Page.Selectors.Input)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grokrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GROKRELAY_API_BASE", "http://relay:9000/api/v1")
	t.Setenv("GROKRELAY_DEBUGGER_URL", "ws://127.0.0.1:9222/devtools/browser/x")
	t.Setenv("GROKRELAY_HEADLESS", "true")
	t.Setenv("GROKRELAY_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "http://relay:9000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", cfg.Browser.DebuggerURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverrides_BadBoolIgnored(t *testing.T) {
	t.Setenv("GROKRELAY_HEADLESS", "maybe")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.False(t, cfg.Browser.Headless)
}

func TestDurationAccessors_FallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bridge.PollInterval = "soon"
	cfg.Bridge.RetryDelay = "-1s"
	cfg.Bridge.MaxRetries = -4
	cfg.API.RequestTimeout = ""

	assert.Equal(t, 2*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 5*time.Second, cfg.GetRetryDelay())
	assert.Equal(t, 10, cfg.GetMaxRetries())
	assert.Equal(t, 30*time.Second, cfg.GetRequestTimeout())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad base url", func(c *Config) { c.API.BaseURL = "localhost" }},
		{"bad schedule", func(c *Config) { c.Bridge.Schedule = "cron" }},
		{"capitalized schedule", func(c *Config) { c.Bridge.Schedule = "Fixed" }},
		{"empty schedule", func(c *Config) { c.Bridge.Schedule = "" }},
		{"missing input selector", func(c *Config) { c.Page.Selectors.Input = "" }},
		{"zero max responses", func(c *Config) { c.Relay.MaxResponses = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	assert.True(t, lc.IsCategoryEnabled("relay"))

	lc.Categories = map[string]bool{"relay": false}
	assert.False(t, lc.IsCategoryEnabled("relay"))
	assert.True(t, lc.IsCategoryEnabled("bridge"))
}
