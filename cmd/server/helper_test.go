package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/nearme-discovery/internal/config"
)

func TestBuildSource(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := buildSource(cfg)
	assert.Error(t, err, "At least one source is required")

	cfg.SeedFile = "merchants.yaml"
	cfg.StoreURL = "https://store.example.com/v1/projects/nearme/databases/(default)"
	src, err := buildSource(cfg)
	require.NoError(t, err)
	assert.Equal(t, "multi", src.Name())
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nearme.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seedFile: /data/merchants.yaml\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/data/merchants.yaml", cfg.SeedFile)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = loadConfig()
	assert.Error(t, err)
}
