// Package config provides functionality for managing configuration options
// for the server using command-line flags, environment variables and an
// optional JSON file.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Duration is a time.Duration that reads "15m"-style strings from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Options holds the configuration values for the server.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address" validate:"required,hostname_port"`

	// DatabaseDSN holds the database connection string.
	DatabaseDSN string `json:"database_dsn" validate:"required"`

	// Config is the path to the JSON config file.
	Config string `json:"-"`

	// JWTSecret signs access tokens.
	JWTSecret string `json:"jwt_secret" validate:"required,min=16"`

	// AccessTTL is the lifetime of an access token.
	AccessTTL Duration `json:"access_ttl" validate:"gt=0"`

	// RefreshTTL is the lifetime of a refresh token.
	RefreshTTL Duration `json:"refresh_ttl" validate:"gtfield=AccessTTL"`

	// CleanInterval is how often expired refresh tokens are purged.
	CleanInterval Duration `json:"clean_interval" validate:"gt=0"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey  string `json:"tls_key" validate:"required_with=TLSCert"`
}

// options holds the current configuration values.
var options = defaults()

func defaults() *Options {
	return &Options{
		AccessTTL:     Duration(15 * time.Minute),
		RefreshTTL:    Duration(30 * 24 * time.Hour),
		CleanInterval: Duration(time.Hour),
		LogLevel:      "info",
	}
}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	flag.StringVar(&options.LogLevel, "l", "info", "log level")
}

// Parse parses the command-line flags, the config file and environment
// variables, in that order of increasing precedence, and validates the
// result.
func Parse() (*Options, error) {
	flag.Parse()
	return resolve(options, os.Getenv)
}

func resolve(o *Options, getenv func(string) string) (*Options, error) {
	if configPath := getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}

	if o.Config != "" {
		data, err := os.ReadFile(o.Config)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error while reading config file: %w", err)
		default:
			if err := json.Unmarshal(data, o); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	if serverAddress := getenv("SERVER_ADDRESS"); serverAddress != "" {
		o.Port = serverAddress
	}
	if dsn := getenv("DATABASE_DSN"); dsn != "" {
		o.DatabaseDSN = dsn
	}
	if secret := getenv("JWT_SECRET"); secret != "" {
		o.JWTSecret = secret
	}

	if err := validator.New().Struct(o); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return o, nil
}
