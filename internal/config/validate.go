package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateClient() error {
	if c.Client.ServerURL == "" {
		return fmt.Errorf("client.server_url must be set (or %s)", EnvServerURL)
	}
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("client.server_url %q must be an http(s) URL", c.Client.ServerURL)
	}
	if c.Client.DBPath == "" {
		return errors.New("client.db_path must be set")
	}
	if c.Client.RequestTimeoutSeconds <= 0 {
		return errors.New("client.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	positive := []struct {
		name  string
		value int
	}{
		{"sync.interval_seconds", c.Sync.IntervalSeconds},
		{"sync.probe_interval_seconds", c.Sync.ProbeIntervalSeconds},
		{"sync.probe_timeout_seconds", c.Sync.ProbeTimeoutSeconds},
		{"sync.backoff_base_ms", c.Sync.BackoffBaseMillis},
		{"sync.backoff_max_seconds", c.Sync.BackoffMaxSeconds},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	if c.Sync.ItemDelayMillis < 0 {
		return errors.New("sync.item_delay_ms must not be negative")
	}
	if c.Sync.DebounceMillis < 0 {
		return errors.New("sync.debounce_ms must not be negative")
	}
	if c.Sync.BackoffBase() > c.Sync.BackoffMax() {
		return errors.New("sync.backoff_base_ms must not exceed sync.backoff_max_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("log.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.TokenTTLHours <= 0 {
		return errors.New("server.token_ttl_hours must be positive")
	}
	if c.Server.RateLimit <= 0 || c.Server.RateWindowSeconds <= 0 {
		return errors.New("server.rate_limit and server.rate_window_seconds must be positive")
	}
	return nil
}
