package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LIFTLOG_API_URL", "")

	cfg, err := Load(filepath.Join(home, "nope.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != defaultAPIURL {
		t.Fatalf("APIURL = %q, want %q", cfg.APIURL, defaultAPIURL)
	}
	if cfg.Store != StoreFile {
		t.Fatalf("Store = %q, want %q", cfg.Store, StoreFile)
	}
	if !strings.HasPrefix(cfg.DataDir, home) {
		t.Fatalf("DataDir = %q, want it under HOME %q", cfg.DataDir, home)
	}
	if cfg.ProbeInterval != defaultProbeInterval || cfg.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StatePath() != filepath.Join(cfg.DataDir, "state.json") {
		t.Fatalf("StatePath = %q", cfg.StatePath())
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LIFTLOG_API_URL", "")

	path := writeConfig(t, `
api_url = "  https://lift.example.com  "
data_dir = "~/lift"
store = "Redis"
redis_addr = "localhost:6379"
redis_db = 2
probe_interval = "30s"
max_attempts = 0
ca_file = "~/ca.pem"
log_level = "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != "https://lift.example.com" {
		t.Fatalf("APIURL = %q", cfg.APIURL)
	}
	if cfg.DataDir != filepath.Join(home, "lift") {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Store != StoreRedis || cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
		t.Fatalf("redis settings = %+v", cfg)
	}
	if cfg.ProbeInterval != 30*time.Second {
		t.Fatalf("ProbeInterval = %s", cfg.ProbeInterval)
	}
	if cfg.MaxAttempts != 0 {
		t.Fatalf("MaxAttempts = %d, want explicit 0", cfg.MaxAttempts)
	}
	if cfg.CAFile != filepath.Join(home, "ca.pem") {
		t.Fatalf("CAFile = %q", cfg.CAFile)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_EnvOverridesAPIURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LIFTLOG_API_URL", "http://10.0.0.2:9000")

	cfg, err := Load(writeConfig(t, `api_url = "http://ignored:1"`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != "http://10.0.0.2:9000" {
		t.Fatalf("APIURL = %q", cfg.APIURL)
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LIFTLOG_API_URL", "")

	cases := map[string]string{
		"bad toml":          `api_url = `,
		"unknown store":     `store = "sqlite"`,
		"postgres sans dsn": `store = "postgres"`,
		"redis sans addr":   `store = "redis"`,
		"bad interval":      `probe_interval = "soon"`,
		"zero interval":     `probe_interval = "0s"`,
		"negative attempts": `max_attempts = -1`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("Load(%q) returned nil error", body)
			}
		})
	}
}
