// Package config loads and validates the gateway configuration.
//
// DESIGN: Configuration comes from YAML with ${VAR:-default} expansion. The
// binary embeds a complete default file, so every field below is expected
// to be set; Validate rejects a file that leaves a required field empty.
// User-editable state (prompts, keys) is NOT here: it lives in the
// settings store and is re-read on every request.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - providers.go:  Provider endpoints and completion defaults
//   - monitoring.go: Logging and telemetry settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Environment overrides applied after parsing.
const (
	EnvStorePath     = "COSENSE_GATEWAY_DB"
	EnvTelemetryPath = "COSENSE_TELEMETRY_LOG"
	EnvExtensionIDs  = "COSENSE_EXTENSION_IDS" // comma separated
)

// Store types.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the root configuration for the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`     // HTTP server settings
	Store      StoreConfig      `yaml:"store"`      // Settings persistence
	Providers  ProvidersConfig  `yaml:"providers"`  // Provider endpoints
	Completion CompletionConfig `yaml:"completion"` // Request defaults
	Monitoring MonitoringConfig `yaml:"monitoring"` // Telemetry and logging
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on (localhost only)
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response

	// ExtensionIDs are the installed extension builds allowed to read and
	// write the full settings record (chrome-extension://<id>).
	ExtensionIDs []string `yaml:"extension_ids"`

	// AllowedOrigins may send prompt and frontend messages, in addition to
	// the extension and loopback pages.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// extensionIDPattern matches Chrome ids and Firefox UUID ids.
var extensionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// StoreConfig selects where settings are persisted.
type StoreConfig struct {
	Type string `yaml:"type"` // memory, sqlite
	Path string `yaml:"path"` // sqlite file; ":memory:" allowed
}

// envPattern matches ${VAR:-default} or ${VAR}.
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets a launcher redirect file paths without editing the config.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv(EnvStorePath); p != "" {
		c.Store.Type = StoreSQLite
		c.Store.Path = p
	}
	if p := os.Getenv(EnvTelemetryPath); p != "" {
		c.Monitoring.TelemetryPath = p
		c.Monitoring.TelemetryEnabled = true
	}
	if ids := os.Getenv(EnvExtensionIDs); ids != "" {
		c.Server.ExtensionIDs = append(c.Server.ExtensionIDs, strings.Split(ids, ",")...)
	}
	c.Server.ExtensionIDs = lo.Uniq(lo.Compact(lo.Map(c.Server.ExtensionIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))
}

// Addr returns the listen address. The gateway only binds loopback.
func (c *Config) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Server.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	for _, id := range c.Server.ExtensionIDs {
		if !extensionIDPattern.MatchString(id) {
			return fmt.Errorf("server.extension_ids: invalid id %q", id)
		}
	}
	for _, o := range c.Server.AllowedOrigins {
		if !strings.Contains(o, "://") {
			return fmt.Errorf("server.allowed_origins: %q must include a scheme", o)
		}
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite store")
		}
	case "":
		return fmt.Errorf("store.type is required")
	default:
		return fmt.Errorf("invalid store.type: %q (must be memory or sqlite)", c.Store.Type)
	}

	if err := c.Providers.Validate(); err != nil {
		return err
	}
	if err := c.Completion.Validate(); err != nil {
		return err
	}
	return c.Monitoring.Validate()
}
