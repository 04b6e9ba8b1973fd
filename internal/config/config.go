package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "livechat"

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Widget   WidgetConfig   `toml:"widget"`
	Browser  BrowserConfig  `toml:"browser"`
	Chat     ChatConfig     `toml:"chat"`
	Archive  ArchiveConfig  `toml:"archive"`
	Schedule ScheduleConfig `toml:"schedule"`
	Logging  LoggingConfig  `toml:"logging"`
}

// WidgetConfig describes the third-party chat deployment being driven.
type WidgetConfig struct {
	LoginURL     string `toml:"login_url"`
	PageURL      string `toml:"page_url"`
	ClientID     int    `toml:"client_id"`
	IdentityMode int    `toml:"identity_mode"` // 0: name+email, 1: email, 2: name, 3: anonymous
	UserAgent    string `toml:"user_agent"`
}

type BrowserConfig struct {
	Headless      bool          `toml:"headless"`
	ExecPath      string        `toml:"exec_path"`
	LoadDelay     time.Duration `toml:"load_delay"`
	ReloadDelay   time.Duration `toml:"reload_delay"`
	ActionTimeout time.Duration `toml:"action_timeout"`
}

type ChatConfig struct {
	LogPath         string        `toml:"log_path"`
	WelcomeAttempts int           `toml:"welcome_attempts"`
	WelcomeInterval time.Duration `toml:"welcome_interval"`
	ReplyTimeout    time.Duration `toml:"reply_timeout"`
	ReplyInterval   time.Duration `toml:"reply_interval"`
}

// ArchiveConfig controls the optional SQLite transcript archive.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // empty means <cache dir>/archive.db
}

type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Widget: WidgetConfig{
			LoginURL:     "https://thenorthnet.oh.3cx.us/MyPhone/c2clogin",
			PageURL:      "https://thenorthnet.oh.3cx.us/callus/",
			ClientID:     1003,
			IdentityMode: 3,
			UserAgent:    "Mozilla/5.0",
		},
		Browser: BrowserConfig{
			Headless:      true,
			LoadDelay:     2 * time.Second,
			ReloadDelay:   6 * time.Second,
			ActionTimeout: 30 * time.Second,
		},
		Chat: ChatConfig{
			LogPath:         "chat.txt",
			WelcomeAttempts: 20,
			WelcomeInterval: time.Second,
			ReplyTimeout:    20 * time.Second,
			ReplyInterval:   2 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
		Schedule: ScheduleConfig{
			Cron:     "*/30 * * * *",
			Timezone: "Local",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks value ranges that would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Widget.LoginURL == "" {
		return fmt.Errorf("widget.login_url cannot be empty")
	}
	if c.Widget.PageURL == "" {
		return fmt.Errorf("widget.page_url cannot be empty")
	}
	if c.Widget.IdentityMode < 0 || c.Widget.IdentityMode > 3 {
		return fmt.Errorf("widget.identity_mode must be between 0 and 3, got %d", c.Widget.IdentityMode)
	}
	if c.Chat.LogPath == "" {
		return fmt.Errorf("chat.log_path cannot be empty")
	}
	if c.Chat.WelcomeAttempts <= 0 {
		return fmt.Errorf("chat.welcome_attempts must be > 0")
	}
	if c.Chat.WelcomeInterval <= 0 || c.Chat.ReplyInterval <= 0 {
		return fmt.Errorf("chat poll intervals must be > 0")
	}
	if c.Chat.ReplyTimeout <= 0 {
		return fmt.Errorf("chat.reply_timeout must be > 0")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	return nil
}

// ArchivePath resolves the archive database location.
func (c *Config) ArchivePath() (string, error) {
	if c.Archive.Path != "" {
		return c.Archive.Path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "archive.db"), nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// LoadFrom reads config from path. Keys missing from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes config to path, creating parent directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
