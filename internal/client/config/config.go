// Package config loads the liftlog client settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigPath    = "~/.config/liftlog/config.toml"
	defaultDataDir       = "~/.local/share/liftlog"
	defaultAPIURL        = "http://127.0.0.1:8080"
	defaultProbeInterval = 10 * time.Second
	defaultMaxAttempts   = 25
	defaultLogLevel      = "info"
)

// Store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the resolved client configuration.
type Config struct {
	APIURL        string
	DataDir       string
	Store         string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ProbeInterval time.Duration
	MaxAttempts   int
	CAFile        string
	LogLevel      string
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIURL:        defaultAPIURL,
		DataDir:       mustExpand(defaultDataDir),
		Store:         StoreFile,
		ProbeInterval: defaultProbeInterval,
		MaxAttempts:   defaultMaxAttempts,
		LogLevel:      defaultLogLevel,
	}
}

// Load reads path, or the default location when path is empty. A missing
// file yields Default. LIFTLOG_API_URL overrides api_url.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := cfg.apply(data); err != nil {
			return Config{}, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("LIFTLOG_API_URL")); v != "" {
		cfg.APIURL = v
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(data []byte) error {
	var raw struct {
		APIURL        string `toml:"api_url"`
		DataDir       string `toml:"data_dir"`
		Store         string `toml:"store"`
		PostgresDSN   string `toml:"postgres_dsn"`
		RedisAddr     string `toml:"redis_addr"`
		RedisPassword string `toml:"redis_password"`
		RedisDB       int    `toml:"redis_db"`
		ProbeInterval string `toml:"probe_interval"`
		MaxAttempts   *int   `toml:"max_attempts"`
		CAFile        string `toml:"ca_file"`
		LogLevel      string `toml:"log_level"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		c.APIURL = v
	}
	if v := strings.TrimSpace(raw.DataDir); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return fmt.Errorf("data_dir: %w", err)
		}
		c.DataDir = expanded
	}
	if v := strings.TrimSpace(raw.Store); v != "" {
		c.Store = strings.ToLower(v)
	}
	c.PostgresDSN = strings.TrimSpace(raw.PostgresDSN)
	c.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	c.RedisPassword = raw.RedisPassword
	c.RedisDB = raw.RedisDB
	if v := strings.TrimSpace(raw.ProbeInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("probe_interval: %w", err)
		}
		c.ProbeInterval = d
	}
	if raw.MaxAttempts != nil {
		c.MaxAttempts = *raw.MaxAttempts
	}
	if v := strings.TrimSpace(raw.CAFile); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return fmt.Errorf("ca_file: %w", err)
		}
		c.CAFile = expanded
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreFile:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("store = \"postgres\" requires postgres_dsn")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("store = \"redis\" requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be positive, got %s", c.ProbeInterval)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts)
	}
	return nil
}

// StatePath is the file backing the local store.
func (c Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.json")
}

// LogPath is the client log file. Logs never go to the terminal.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "liftlog.log")
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
