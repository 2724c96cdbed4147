package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("MAX_COUNT_CHANGE", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 0.5, cfg.MaxCountChange)
	assert.True(t, cfg.EnableCircuitBreaker)
	assert.False(t, cfg.Analytics.Enabled())
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nearme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
storeUrl: https://store.example.com
cacheTtl: 2m
minMerchants: 5
analytics:
  webhookUrl: https://hooks.example.com/search
  batchSize: 10
`), 0o600))

	t.Setenv("STORE_URL", "https://override.example.com")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "https://override.example.com", cfg.StoreURL)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.MinMerchants)
	assert.True(t, cfg.Analytics.Enabled())
	assert.Equal(t, 10, cfg.Analytics.BatchSize)
	// Unset keys keep defaults
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [unterminated"), 0o600))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "failed to parse config file")

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("maxCountChange: 3"), 0o600))
	_, err = LoadFile(invalid)
	assert.ErrorContains(t, err, "max count change")
}
