// file: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, _, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10224, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1000, cfg.Catalog.CacheSize)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, 10*time.Minute, cfg.External.IdleTTL)
	assert.Equal(t, 0, cfg.GRPC.Port)
	assert.Equal(t, float64(50), cfg.RateLimit.ModelRate)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  port: 8080
  log_level: warn
store:
  driver: postgres
  dsn: postgres://u:p@localhost/modelaegis?sslmode=disable
external:
  idle_ttl: 1m
rate_limit:
  ip_rate: 5
grpc:
  port: 9090
`)
	t.Setenv("MODELAEGIS_SERVER_PORT", "8181")
	t.Setenv("MODELAEGIS_RATE_LIMIT_MODEL_RATE", "7.5")

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port, "环境变量优先于配置文件")
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://u:p@localhost/modelaegis?sslmode=disable", cfg.Store.DSN)
	assert.Equal(t, time.Minute, cfg.External.IdleTTL)
	assert.Equal(t, float64(5), cfg.RateLimit.IPRate)
	assert.Equal(t, 7.5, cfg.RateLimit.ModelRate)
	assert.Equal(t, 9090, cfg.GRPC.Port)
	assert.Equal(t, 5*time.Second, cfg.External.PingTimeout, "未覆盖的键保留默认值")
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	_, _, err = Load(writeConfig(t, dir, "store:\n  driver: oracle\n"))
	assert.ErrorContains(t, err, "store.driver")

	_, _, err = Load(writeConfig(t, dir, "server:\n  port: 7000\ngrpc:\n  port: 7000\n"))
	assert.ErrorContains(t, err, "grpc.port")

	_, _, err = Load(writeConfig(t, dir, "server:\n  port: 70000\n"))
	assert.ErrorContains(t, err, "server.port")
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "server:\n  log_level: info\n")
	_, v, err := Load(path)
	require.NoError(t, err)

	changes := make(chan *Config, 16)
	Watch(v, func(cfg *Config) { changes <- cfg })

	require.NoError(t, os.WriteFile(path, []byte("server:\n  log_level: debug\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Server.LogLevel == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("配置文件变化后没有收到回调")
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MODELAEGIS_CATALOG_CACHE_SIZE=42\nMODELAEGIS_SERVER_LOG_LEVEL=error\n"), 0o644))
	t.Setenv("MODELAEGIS_SERVER_LOG_LEVEL", "debug")
	t.Setenv("MODELAEGIS_CATALOG_CACHE_SIZE", "")
	require.NoError(t, os.Unsetenv("MODELAEGIS_CATALOG_CACHE_SIZE"))

	loaded, err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile)
	require.NoError(t, err)
	assert.Equal(t, []string{envFile}, loaded)

	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Catalog.CacheSize)
	assert.Equal(t, "debug", cfg.Server.LogLevel, "已有的环境变量优先于 .env")
}
