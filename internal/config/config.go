package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "grokrelay.yaml"

// Config holds all grokrelay configuration.
type Config struct {
	// Relay API the bridge polls
	API APIConfig `yaml:"api"`

	// Poll loop / observer tuning
	Bridge BridgeConfig `yaml:"bridge"`

	// Automated chat page
	Page PageConfig `yaml:"page"`

	// Chrome instance driven over CDP
	Browser BrowserConfig `yaml:"browser"`

	// In-memory relay server
	Relay RelayConfig `yaml:"relay"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the relay API client used by the bridge.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Origin         string `yaml:"origin"` // Origin header pinned to the automated page
	RequestTimeout string `yaml:"request_timeout"`
}

// BridgeConfig configures the poll loop and reply observer.
type BridgeConfig struct {
	PollInterval string `yaml:"poll_interval"`
	RetryDelay   string `yaml:"retry_delay"`
	MaxRetries   int    `yaml:"max_retries"`
	// rearm: next tick is armed after the previous one finishes.
	// fixed: ticker fires every interval, slow ticks may overlap.
	Schedule string `yaml:"schedule"`
}

// PageConfig describes the chat page and the selectors the bridge relies on.
type PageConfig struct {
	URL       string          `yaml:"url"`
	Selectors SelectorsConfig `yaml:"selectors"`
}

// SelectorsConfig holds CSS selectors for the chat page DOM surface.
type SelectorsConfig struct {
	Input         string `yaml:"input"`
	Submit        string `yaml:"submit"`
	MessageBubble string `yaml:"message_bubble"`
	Paragraph     string `yaml:"paragraph"`
	Container     string `yaml:"container"`
	Spinner       string `yaml:"spinner"`
	Typing        string `yaml:"typing"`
	ShareButton   string `yaml:"share_button"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	DebuggerURL       string   `yaml:"debugger_url"`
	Launch            []string `yaml:"launch"` // binary followed by flags
	Headless          bool     `yaml:"headless"`
	UserDataDir       string   `yaml:"user_data_dir"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	Listen         string `yaml:"listen"`
	MaxResponses   int    `yaml:"max_responses"`
	RateLimitDelay string `yaml:"rate_limit_delay"`
	ResponseTTL    string `yaml:"response_ttl"`
}

// Schedule names.
const (
	ScheduleRearm = "rearm"
	ScheduleFixed = "fixed"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:5001/api/v1",
			Origin:         "https://grok.com",
			RequestTimeout: "30s",
		},

		Bridge: BridgeConfig{
			PollInterval: "2s",
			RetryDelay:   "5s",
			MaxRetries:   10,
			Schedule:     ScheduleRearm,
		},

		Page: PageConfig{
			URL: "https://grok.com/",
			Selectors: SelectorsConfig{
				Input:         "textarea",
				Submit:        `button[type="submit"]`,
				MessageBubble: ".message-bubble",
				Paragraph:     "p",
				Container:     ".relative.group",
				Spinner:       ".animate-spin",
				Typing:        ".typing-indicator",
				ShareButton:   `button[aria-label="Share conversation"]`,
			},
		},

		Browser: BrowserConfig{
			Headless:          false,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: "30s",
		},

		Relay: RelayConfig{
			Listen:         "0.0.0.0:5001",
			MaxResponses:   10,
			RateLimitDelay: "1s",
			ResponseTTL:    "5m",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GROKRELAY_API_BASE"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("GROKRELAY_ORIGIN"); v != "" {
		c.API.Origin = v
	}
	if v := os.Getenv("GROKRELAY_PAGE_URL"); v != "" {
		c.Page.URL = v
	}
	if v := os.Getenv("GROKRELAY_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("GROKRELAY_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("GROKRELAY_LISTEN"); v != "" {
		c.Relay.Listen = v
	}
	if v := os.Getenv("GROKRELAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetRequestTimeout returns the per-request relay API timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.API.RequestTimeout, 30*time.Second)
}

// GetPollInterval returns the poll loop interval.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Bridge.PollInterval, 2*time.Second)
}

// GetRetryDelay returns the delay between observer attempts.
func (c *Config) GetRetryDelay() time.Duration {
	return parseDuration(c.Bridge.RetryDelay, 5*time.Second)
}

// GetMaxRetries returns the number of extra observer attempts.
func (c *Config) GetMaxRetries() int {
	if c.Bridge.MaxRetries < 0 {
		return 10
	}
	return c.Bridge.MaxRetries
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetRateLimitDelay returns the minimum spacing between rate limited relay requests.
func (c *Config) GetRateLimitDelay() time.Duration {
	return parseDuration(c.Relay.RateLimitDelay, time.Second)
}

// GetResponseTTL returns how long the relay keeps stored replies.
func (c *Config) GetResponseTTL() time.Duration {
	return parseDuration(c.Relay.ResponseTTL, 5*time.Minute)
}

// ValidSchedules lists all supported poll schedules.
var ValidSchedules = []string{ScheduleRearm, ScheduleFixed}

// IsValidSchedule reports whether s names a schedule. Names are
// case-sensitive.
func IsValidSchedule(s string) bool {
	for _, v := range ValidSchedules {
		if s == v {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}

	if !IsValidSchedule(c.Bridge.Schedule) {
		return fmt.Errorf("invalid bridge.schedule: %s (valid: %v)", c.Bridge.Schedule, ValidSchedules)
	}

	if c.Page.Selectors.Input == "" || c.Page.Selectors.Submit == "" || c.Page.Selectors.MessageBubble == "" {
		return fmt.Errorf("page.selectors: input, submit and message_bubble are required")
	}

	if c.Relay.MaxResponses <= 0 {
		return fmt.Errorf("relay.max_responses must be positive, got %d", c.Relay.MaxResponses)
	}

	return nil
}
