package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCSFD(); err != nil {
		return err
	}
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCSFD() error {
	if _, err := url.ParseRequestURI(c.CSFD.BaseURL); err != nil {
		return fmt.Errorf("csfd.base_url: %w", err)
	}
	if c.CSFD.RequestDelayMs < 0 {
		return errors.New("csfd.request_delay_ms must not be negative")
	}
	if c.CSFD.MaxRetries < 1 {
		return errors.New("csfd.max_retries must be at least 1")
	}
	return ensurePositiveMap(map[string]int{
		"csfd.cooldown_min_minutes":           c.CSFD.CooldownMinMinutes,
		"csfd.throttle_backoff_cap_minutes":   c.CSFD.ThrottleBackoffCapMinutes,
		"csfd.transient_backoff_cap_minutes":  c.CSFD.TransientBackoffCapMinutes,
		"csfd.throttle_default_sleep_seconds": c.CSFD.ThrottleDefaultSleepSeconds,
		"csfd.request_timeout_seconds":        c.CSFD.RequestTimeoutSeconds,
	})
}

func (c *Config) validateJellyfin() error {
	if c.Jellyfin.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/csfdoverlay/config.toml"
		}
		return fmt.Errorf("jellyfin.url is required. Set JELLYFIN_URL env var or edit %s (create with 'csfdoverlay config init')", defaultPath)
	}
	if _, err := url.ParseRequestURI(c.Jellyfin.URL); err != nil {
		return fmt.Errorf("jellyfin.url: %w", err)
	}
	if c.Jellyfin.APIKey == "" {
		return errors.New("jellyfin.api_key is required. Set JELLYFIN_API_KEY env var or edit the config file")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case CacheBackendSQLite, CacheBackendBolt, CacheBackendJSON:
	default:
		return fmt.Errorf("cache.backend: unsupported value %q (want %s, %s or %s)", c.Cache.Backend, CacheBackendSQLite, CacheBackendBolt, CacheBackendJSON)
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		return errors.New("cache.path must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
