// Package config holds the webpilot driver and daemon settings. Settings are
// read from ~/.webpilot/config.yaml and can be overridden per invocation by
// the SETTING_* environment variables the host runtime passes to connector
// processes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all webpilot configuration.
type Config struct {
	// Headless controls ephemeral (non-session) browser launches. Session
	// daemons are always headed so a human can watch the window.
	Headless bool `yaml:"headless"`

	// SlowMoMs inserts a delay between browser operations, for debugging.
	SlowMoMs int `yaml:"slow_mo_ms"`

	// TimeoutS is the default per-operation timeout in seconds.
	TimeoutS int `yaml:"timeout_s"`

	// Locale for new browser contexts, e.g. "en-US".
	Locale string `yaml:"locale"`

	// UserAgent is either a named preset (chrome, firefox, safari, mobile)
	// or a literal user-agent string.
	UserAgent string `yaml:"user_agent"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	// SessionStore overrides the session registry path.
	SessionStore string `yaml:"session_store"`

	// DownloadsDir is where screenshots are written.
	DownloadsDir string `yaml:"downloads_dir"`
}

// userAgents are the named presets accepted by UserAgent.
var userAgents = map[string]string{
	"chrome":  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"firefox": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"safari":  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"mobile":  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
}

// Default returns the baseline configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	downloads := ""
	if home != "" {
		downloads = filepath.Join(home, "Downloads")
	}
	return Config{
		Headless:       true,
		TimeoutS:       30,
		Locale:         "en-US",
		UserAgent:      "chrome",
		ViewportWidth:  1280,
		ViewportHeight: 800,
		DownloadsDir:   downloads,
	}
}

// DefaultPath returns the config file location under the user's home
// directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".webpilot", "config.yaml"), nil
}

// Load reads the config file at path, falling back to defaults when the file
// is absent, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv overlays the SETTING_* variables from the host runtime contract.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("SETTING_HEADLESS"); ok {
		c.Headless = v != "false"
	}
	if v, ok := os.LookupEnv("SETTING_SLOW_MO"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.SlowMoMs = n
		}
	}
	if v, ok := os.LookupEnv("SETTING_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutS = n
		}
	}
	if v, ok := os.LookupEnv("SETTING_LOCALE"); ok && v != "" {
		c.Locale = v
	}
	if v, ok := os.LookupEnv("SETTING_USER_AGENT"); ok && v != "" {
		c.UserAgent = v
	}
	if v, ok := os.LookupEnv("WEBPILOT_DOWNLOADS"); ok && v != "" {
		c.DownloadsDir = v
	}
}

// Timeout returns the default per-operation timeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutS) * time.Second
}

// ResolvedUserAgent maps named presets to full user-agent strings. Unknown
// values are returned verbatim so users can supply a literal string.
func (c Config) ResolvedUserAgent() string {
	if ua, ok := userAgents[c.UserAgent]; ok {
		return ua
	}
	if c.UserAgent == "" {
		return userAgents["chrome"]
	}
	return c.UserAgent
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth <= 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight <= 0 {
		return 800
	}
	return c.ViewportHeight
}
