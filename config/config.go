// Package config loads service configuration from defaults, an
// optional YAML file and environment variables, in that order of
// priority.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, first hit
// wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tagforge/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the environment variables the loader reads:
// TAGFORGE_PORT, TAGFORGE_LOG_LEVEL and so on.
const envPrefix = "TAGFORGE_"

// Config holds the service configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port int `koanf:"port"`
	// CORSOrigins are the allowed cross-origin hosts.
	CORSOrigins []string `koanf:"cors_origins"`
	// MaxUploadMB caps the multipart form size.
	MaxUploadMB int `koanf:"max_upload_mb"`
	// LogLevel is trace, debug, info, warn or error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is json or console.
	LogFormat string `koanf:"log_format"`
	// Padding is the byte count of zero padding written after a saved
	// ID3v2 tag.
	Padding int `koanf:"padding"`
}

func defaultConfig() *Config {
	return &Config{
		Port:        8080,
		CORSOrigins: []string{"http://localhost:3000"},
		MaxUploadMB: 64,
		LogLevel:    "info",
		LogFormat:   "json",
		Padding:     1024,
	}
}

// Load builds the configuration: struct defaults, then the config file
// if one exists, then TAGFORGE_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	// cors_origins may arrive as a comma-separated string from the
	// environment.
	if s := k.String("cors_origins"); s != "" && strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := k.Set("cors_origins", parts); err != nil {
			return nil, fmt.Errorf("config: normalize cors_origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("config: max_upload_mb must be at least 1, got %d", c.MaxUploadMB)
	}
	if c.Padding < 0 {
		return fmt.Errorf("config: padding must not be negative, got %d", c.Padding)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: log_format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
