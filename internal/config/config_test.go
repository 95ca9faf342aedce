package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper clears viper's global state between tests.
func resetViper() {
	viper.Reset()
}

func unsetEnvKeys(keys ...string) {
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()
	unsetEnvKeys("REDIS_HOST", "REDIS_PORT", "REDIS_DB", "REDIS_TIMEOUT")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Application.Port)
	assert.Equal(t, "redis", cfg.Events.Backend)
	assert.Equal(t, "redis", cfg.Cron.Backend)
	assert.Equal(t, "queue", cfg.Jobs.Backend)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 3600, cfg.Cache.TimeoutSeconds)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "development", cfg.Env)
}

func TestLoad_File(t *testing.T) {
	resetViper()
	unsetEnvKeys("REDIS_HOST", "REDIS_PORT", "REDIS_DB", "REDIS_TIMEOUT")

	yaml := `
env: "production"
application:
  port: 9090
events:
  backend: "redis"
  polling_interval: "2s"
cron:
  backend: "redis"
  polling_interval: "1m"
  tasks:
    - name: "digest"
      target: "notif.digest"
      schedule:
        minute: "*/5"
jobs:
  backend: "immediate"
cache:
  backend: "memory"
  timeout_seconds: 60
redis:
  host: "redis.internal"
  port: 6380
  db: 2
`
	path := writeTempYAML(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 9090, cfg.Application.Port)
	assert.Equal(t, 2*1e9, float64(cfg.Events.PollingInterval))
	assert.Equal(t, "immediate", cfg.Jobs.Backend)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 60, cfg.Cache.TimeoutSeconds)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 2, cfg.Redis.DB)

	require.Len(t, cfg.Cron.Tasks, 1)
	assert.Equal(t, "digest", cfg.Cron.Tasks[0].Name)
	assert.Equal(t, "*/5", cfg.Cron.Tasks[0].Schedule.Minute)
}

func TestLoad_RedisEnvOverridesFile(t *testing.T) {
	resetViper()

	yaml := `
redis:
  host: "file-redis"
  port: 6379
  db: 0
`
	path := writeTempYAML(t, yaml)

	require.NoError(t, os.Setenv("REDIS_HOST", "env-redis"))
	require.NoError(t, os.Setenv("REDIS_PORT", "7000"))
	require.NoError(t, os.Setenv("REDIS_DB", "5"))
	t.Cleanup(func() { unsetEnvKeys("REDIS_HOST", "REDIS_PORT", "REDIS_DB") })

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-redis", cfg.Redis.Host, "REDIS_HOST must override the file")
	assert.Equal(t, 7000, cfg.Redis.Port, "REDIS_PORT must override the file")
	assert.Equal(t, 5, cfg.Redis.DB, "REDIS_DB must override the file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	resetViper()
	invalid := "application:\n  port: : invalid\n"
	path := writeTempYAML(t, invalid)

	cfg, err := Load(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_ValidationError(t *testing.T) {
	resetViper()
	unsetEnvKeys("REDIS_HOST", "REDIS_PORT", "REDIS_DB", "REDIS_TIMEOUT")

	yaml := "application:\n  port: -1\n"
	path := writeTempYAML(t, yaml)

	cfg, err := Load(path)
	require.Error(t, err, "validation should fail for invalid application.port")
	assert.Nil(t, cfg)
}
