// Package config loads chartsync settings from a TOML file with environment
// overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Environment variables that override file values.
const (
	EnvAccessToken = "CHARTSYNC_ACCESS_TOKEN"
	EnvPassphrase  = "CHARTSYNC_PASSPHRASE"
	EnvJWTSecret   = "CHARTSYNC_JWT_SECRET"
	EnvServerURL   = "CHARTSYNC_SERVER_URL"
)

// Client contains settings of the offline client.
type Client struct {
	ServerURL   string `toml:"server_url"`
	DBPath      string `toml:"db_path"`
	AccessToken string `toml:"access_token"`
	// Passphrase enables at-rest encryption of the local store. Prefer the
	// environment variable over the file.
	Passphrase            string `toml:"passphrase"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Sync contains scheduler and connectivity timing.
type Sync struct {
	IntervalSeconds      int `toml:"interval_seconds"`
	ItemDelayMillis      int `toml:"item_delay_ms"`
	DebounceMillis       int `toml:"debounce_ms"`
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
	ProbeTimeoutSeconds  int `toml:"probe_timeout_seconds"`
	BackoffBaseMillis    int `toml:"backoff_base_ms"`
	BackoffMaxSeconds    int `toml:"backoff_max_seconds"`
}

// LocalAPI contains settings of the daemon HTTP surface for UI collaborators.
type LocalAPI struct {
	Bind    string `toml:"bind"`
	Enabled bool   `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"` // пусто = stderr
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Server contains settings of the reference backend.
type Server struct {
	Bind              string `toml:"bind"`
	DBPath            string `toml:"db_path"`
	JWTSecret         string `toml:"jwt_secret"`
	TokenTTLHours     int    `toml:"token_ttl_hours"`
	RateLimit         int    `toml:"rate_limit"`
	RateWindowSeconds int    `toml:"rate_window_seconds"`
}

// Config encapsulates all configuration values.
//
// Sections:
//   - Client: backend address, local store and credentials
//   - Sync: scheduler, debounce, probe and backoff timing
//   - LocalAPI: daemon HTTP API and event stream
//   - Logging: level, format and rotating file output
//   - Server: reference backend
type Config struct {
	Client   Client   `toml:"client"`
	Sync     Sync     `toml:"sync"`
	LocalAPI LocalAPI `toml:"local_api"`
	Logging  Logging  `toml:"log"`
	Server   Server   `toml:"server"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/chartsync/config.toml")
}

// Load parses the file at path (or the default location when path is empty),
// applies environment overrides and validates the result. A missing file is
// not an error: defaults are used. The resolved path and whether it existed
// are returned alongside the config.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Sample returns the commented sample configuration.
func Sample() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to path. An existing file is
// never overwritten.
func WriteSample(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	file, err := os.OpenFile(expanded, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(sampleConfig); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func (c *Config) applyEnv() {
	if v, ok := lookupEnv(EnvAccessToken); ok {
		c.Client.AccessToken = v
	}
	if v, ok := lookupEnv(EnvPassphrase); ok {
		c.Client.Passphrase = v
	}
	if v, ok := lookupEnv(EnvServerURL); ok {
		c.Client.ServerURL = v
	}
	if v, ok := lookupEnv(EnvJWTSecret); ok {
		c.Server.JWTSecret = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (c *Config) normalize() error {
	c.Client.ServerURL = strings.TrimRight(strings.TrimSpace(c.Client.ServerURL), "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	var err error
	if c.Client.DBPath, err = ExpandPath(c.Client.DBPath); err != nil {
		return err
	}
	if c.Server.DBPath, err = ExpandPath(c.Server.DBPath); err != nil {
		return err
	}
	if c.Logging.File, err = ExpandPath(c.Logging.File); err != nil {
		return err
	}
	return nil
}

// Timing accessors.

func (s Sync) Interval() time.Duration      { return time.Duration(s.IntervalSeconds) * time.Second }
func (s Sync) ItemDelay() time.Duration     { return time.Duration(s.ItemDelayMillis) * time.Millisecond }
func (s Sync) Debounce() time.Duration      { return time.Duration(s.DebounceMillis) * time.Millisecond }
func (s Sync) ProbeInterval() time.Duration { return time.Duration(s.ProbeIntervalSeconds) * time.Second }
func (s Sync) ProbeTimeout() time.Duration  { return time.Duration(s.ProbeTimeoutSeconds) * time.Second }
func (s Sync) BackoffBase() time.Duration   { return time.Duration(s.BackoffBaseMillis) * time.Millisecond }
func (s Sync) BackoffMax() time.Duration    { return time.Duration(s.BackoffMaxSeconds) * time.Second }

// RequestTimeout is the HTTP timeout towards the backend.
func (c Client) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// TokenTTL is the lifetime of minted access tokens.
func (s Server) TokenTTL() time.Duration { return time.Duration(s.TokenTTLHours) * time.Hour }

// RateWindow is the rate limiter window.
func (s Server) RateWindow() time.Duration {
	return time.Duration(s.RateWindowSeconds) * time.Second
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// ExpandPath resolves a leading ~ and makes the path absolute. Empty stays empty.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
