// Package config provides unified configuration for the pulsevault server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full server configuration.
type Config struct {
	// DataDir is the base directory for the database and related files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Testing switches the server to a separate database file and port so a
	// test instance never touches real data
	Testing bool `json:"testing" yaml:"testing"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Auth configuration
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Datastore configuration
	Datastore DatastoreConfig `json:"datastore" yaml:"datastore"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// CORSOrigins lists extra origins allowed to call the API
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
}

// AuthConfig holds token signing configuration.
type AuthConfig struct {
	// JWTSecret signs session tokens. Required outside testing mode.
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
}

// DatastoreConfig holds datastore tuning knobs.
type DatastoreConfig struct {
	// Path overrides the database file location. Empty means DataDir based.
	Path string `json:"path" yaml:"path"`

	// CommitInterval is how long a transaction stays open before the worker
	// commits it
	CommitInterval time.Duration `json:"commit_interval" yaml:"commit_interval"`

	// MaxUncommittedEvents is how many event writes a transaction may
	// accumulate before the worker commits it
	MaxUncommittedEvents int `json:"max_uncommitted_events" yaml:"max_uncommitted_events"`

	// LegacyImport enables the one-time import from an old-format database
	// when a fresh store is created
	LegacyImport bool `json:"legacy_import" yaml:"legacy_import"`

	// LegacyPath overrides the legacy database location
	LegacyPath string `json:"legacy_path" yaml:"legacy_path"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/pulsevault",
		HTTP: HTTPConfig{
			Addr:         ":5600",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Datastore: DatastoreConfig{
			CommitInterval:       15 * time.Second,
			MaxUncommittedEvents: 100,
			LegacyImport:         true,
		},
	}
}

// Resolve resolves relative paths and testing-mode overrides.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/pulsevault"
	}
	if c.Testing && c.HTTP.Addr == ":5600" {
		c.HTTP.Addr = ":5666"
	}
	if c.Datastore.Path == "" {
		name := "sqlite.db"
		if c.Testing {
			name = "sqlite-testing.db"
		}
		c.Datastore.Path = filepath.Join(c.DataDir, name)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Auth.JWTSecret == "" && !c.Testing {
		return fmt.Errorf("auth.jwt_secret is required outside testing mode")
	}
	if c.Datastore.CommitInterval <= 0 {
		return fmt.Errorf("datastore.commit_interval must be positive, got %s", c.Datastore.CommitInterval)
	}
	if c.Datastore.MaxUncommittedEvents <= 0 {
		return fmt.Errorf("datastore.max_uncommitted_events must be positive, got %d", c.Datastore.MaxUncommittedEvents)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the PULSEVAULT_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PULSEVAULT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PULSEVAULT_TESTING"); v != "" {
		cfg.Testing = v == "true" || v == "1"
	}
	if v := os.Getenv("PULSEVAULT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("PULSEVAULT_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PULSEVAULT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("PULSEVAULT_DB_PATH"); v != "" {
		cfg.Datastore.Path = v
	}
	if v := os.Getenv("PULSEVAULT_COMMIT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Datastore.CommitInterval = d
		}
	}
	if v := os.Getenv("PULSEVAULT_MAX_UNCOMMITTED_EVENTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Datastore.MaxUncommittedEvents)
	}
	if v := os.Getenv("PULSEVAULT_LEGACY_IMPORT"); v != "" {
		cfg.Datastore.LegacyImport = v == "true" || v == "1"
	}
	if v := os.Getenv("PULSEVAULT_LEGACY_PATH"); v != "" {
		cfg.Datastore.LegacyPath = v
	}
}
