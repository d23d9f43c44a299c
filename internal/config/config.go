// Package config loads hostkeeper configuration once, at startup, into an
// immutable structure handed down to every component. Components never read
// the environment themselves; that keeps them testable without simulating it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all hostkeeper configuration.
type Config struct {
	Panel    PanelConfig    `yaml:"panel"`
	Egress   EgressConfig   `yaml:"egress"`
	Renewal  RenewalConfig  `yaml:"renewal"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// PanelConfig configures the hosting panel session.
type PanelConfig struct {
	BaseURL    string `yaml:"base_url"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	TargetName string `yaml:"target_name"` // empty = auto-lock when exactly one server exists
	ProxyURL   string `yaml:"proxy_url"`
	Headless   bool   `yaml:"headless"`

	NavigationTimeoutMs int `yaml:"navigation_timeout_ms"`
	SettleDelayMs       int `yaml:"settle_delay_ms"`
}

// EgressConfig configures the pre-login identity check. Empty ExpectedIP
// disables verification entirely.
type EgressConfig struct {
	ExpectedIP     string `yaml:"expected_ip"`
	ProbeTimeoutMs int    `yaml:"probe_timeout_ms"`
}

// RenewalConfig configures outcome classification.
type RenewalConfig struct {
	CapacityThresholdHours int `yaml:"capacity_threshold_hours"`
}

// TelegramConfig configures the notification channel.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	Timezone string `yaml:"timezone"` // zone for notification timestamps
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Panel: PanelConfig{
			BaseURL:             "https://greathost.es",
			Headless:            true,
			NavigationTimeoutMs: 25000,
			SettleDelayMs:       8000,
		},
		Egress: EgressConfig{
			ProbeTimeoutMs: 15000,
		},
		Renewal: RenewalConfig{
			CapacityThresholdHours: 108,
		},
		Telegram: TelegramConfig{
			Timezone: "Asia/Shanghai",
		},
	}
}

// Load reads the optional YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides layers environment variables over whatever the file set.
// These are the variables the deployment's scheduler already exports.
func (c *Config) applyEnvOverrides() {
	setString(&c.Panel.Email, "GREATHOST_EMAIL")
	setString(&c.Panel.Password, "GREATHOST_PASSWORD")
	setString(&c.Panel.TargetName, "TARGET_NAME")
	setString(&c.Panel.ProxyURL, "PROXY_URL")
	setString(&c.Egress.ExpectedIP, "EXPECTED_EGRESS_IP")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")

	if v := os.Getenv("CAPACITY_THRESHOLD_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Renewal.CapacityThresholdHours = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the fields a credentialed run cannot proceed without.
func (c *Config) Validate() error {
	if c.Panel.Email == "" || c.Panel.Password == "" {
		return fmt.Errorf("panel credentials required (GREATHOST_EMAIL / GREATHOST_PASSWORD)")
	}
	if c.Panel.BaseURL == "" {
		return fmt.Errorf("panel base_url required")
	}
	if c.Renewal.CapacityThresholdHours <= 0 {
		return fmt.Errorf("capacity_threshold_hours must be positive, got %d", c.Renewal.CapacityThresholdHours)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Telegram.Timezone, err)
	}
	return nil
}

// Location resolves the notification timestamp zone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Telegram.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Telegram.Timezone)
}

// NavigationTimeout returns the bounded wait for page interactions.
func (c *PanelConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 25 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// SettleDelay returns how long to wait after the mutating call before the
// post-action read; the panel is eventually consistent.
func (c *PanelConfig) SettleDelay() time.Duration {
	if c.SettleDelayMs <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// ProbeTimeout returns the bounded wait for the egress identity probe.
func (c *EgressConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}
