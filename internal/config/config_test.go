package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: 127.0.0.1
phishing:
  base_url: https://gp.internal:3333
  api_key: secret-key
  timeout_seconds: 10
polling:
  interval_seconds: 15
redis:
  addr: cache.internal:6379
  enabled: true
database:
  url: postgres://monitor@db.internal/stats
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://gp.internal:3333", cfg.Phishing.BaseURL)
	assert.Equal(t, "secret-key", cfg.Phishing.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Phishing.Timeout())
	assert.Equal(t, 15*time.Second, cfg.Polling.Interval())
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Database.Enabled)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "https://localhost:3333", cfg.Phishing.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Phishing.Timeout())
	assert.Equal(t, 60*time.Second, cfg.Polling.Interval())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
phishing:
  api_key: file-key
`)

	t.Setenv("PHISHING_API_KEY", "env-key")
	t.Setenv("PHISHING_BASE_URL", "https://gp.example:3333")
	t.Setenv("REDIS_ADDR", "redis.example:6379")
	t.Setenv("DATABASE_URL", "postgres://monitor@db.example/stats")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Phishing.APIKey)
	assert.Equal(t, "https://gp.example:3333", cfg.Phishing.BaseURL)
	assert.Equal(t, "redis.example:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Database.Enabled)
}

func TestGetHost(t *testing.T) {
	cfg := ServerConfig{Host: "localhost"}

	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("SERVER_HOST", "")
	assert.Equal(t, "localhost", cfg.GetHost())

	t.Setenv("SERVER_HOST", "10.0.0.5")
	assert.Equal(t, "10.0.0.5", cfg.GetHost())

	t.Setenv("ECS_CONTAINER_METADATA_URI", "http://169.254.170.2/v3")
	assert.Equal(t, "0.0.0.0", cfg.GetHost())
}
