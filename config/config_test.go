package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 64, cfg.MaxUploadMB)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 1024, cfg.Padding)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nlog_level: debug\n"), 0o644))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 64, cfg.MaxUploadMB)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\n"), 0o644))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("TAGFORGE_PORT", "9090")
	t.Setenv("TAGFORGE_LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("TAGFORGE_CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("TAGFORGE_LOG_FORMAT", "xml")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := defaultConfig()
	require.NoError(t, base.Validate())

	bad := *base
	bad.Port = 0
	assert.Error(t, bad.Validate())

	bad = *base
	bad.MaxUploadMB = 0
	assert.Error(t, bad.Validate())

	bad = *base
	bad.Padding = -1
	assert.Error(t, bad.Validate())

	bad = *base
	bad.LogFormat = "plain"
	assert.Error(t, bad.Validate())
}
