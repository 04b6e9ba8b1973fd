package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (default ".env") into the
// process environment. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values from LIVECHAT_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Widget.LoginURL = getEnv("LIVECHAT_LOGIN_URL", c.Widget.LoginURL)
	c.Widget.PageURL = getEnv("LIVECHAT_PAGE_URL", c.Widget.PageURL)
	c.Browser.ExecPath = getEnv("LIVECHAT_CHROME_PATH", c.Browser.ExecPath)
	c.Chat.LogPath = getEnv("LIVECHAT_LOG_PATH", c.Chat.LogPath)
	c.Archive.Path = getEnv("LIVECHAT_ARCHIVE_PATH", c.Archive.Path)
	c.Logging.Level = getEnv("LIVECHAT_LOG_LEVEL", c.Logging.Level)

	var err error
	if c.Widget.ClientID, err = getEnvInt("LIVECHAT_CLIENT_ID", c.Widget.ClientID); err != nil {
		return err
	}
	if c.Widget.IdentityMode, err = getEnvInt("LIVECHAT_IDENTITY_MODE", c.Widget.IdentityMode); err != nil {
		return err
	}
	if c.Browser.Headless, err = getEnvBool("LIVECHAT_HEADLESS", c.Browser.Headless); err != nil {
		return err
	}
	if c.Archive.Enabled, err = getEnvBool("LIVECHAT_ARCHIVE_ENABLED", c.Archive.Enabled); err != nil {
		return err
	}
	if c.Chat.ReplyTimeout, err = getEnvDuration("LIVECHAT_REPLY_TIMEOUT", c.Chat.ReplyTimeout); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
