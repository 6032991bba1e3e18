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

	assert.Equal(t, "https://clob.polymarket.com", cfg.ClobAPIBase)
	assert.Equal(t, 137, cfg.ChainID)
	assert.Equal(t, ":8003", cfg.HTTPAddr)
	assert.Equal(t, 60, cfg.EvalInterval)
	assert.Equal(t, 300, cfg.ReconcileInterval)
	assert.Equal(t, 20, cfg.MarketsPerCycle)
	assert.False(t, cfg.GlobalKillSwitch)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("GLOBAL_KILL_SWITCH", "true")
	t.Setenv("STRATEGY_EVAL_INTERVAL", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache.internal", cfg.RedisHost)
	assert.Equal(t, 6380, cfg.RedisPort)
	assert.True(t, cfg.GlobalKillSwitch)
	assert.Equal(t, 15, cfg.EvalInterval)
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis_host: yaml-redis\nchain_id: 80002\n"), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REDIS_HOST", "env-redis")

	cfg, err := Load()
	require.NoError(t, err)

	// env wins over the file, the file wins over defaults
	assert.Equal(t, "env-redis", cfg.RedisHost)
	assert.Equal(t, 80002, cfg.ChainID)
}

func TestLoadBadConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMalformedInt(t *testing.T) {
	t.Setenv("REDIS_PORT", "not-a-port")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6379, cfg.RedisPort)
}
