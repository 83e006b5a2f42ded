package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelocker/internal/beacon"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, beacon.DefaultEndpoints, cfg.Endpoints)
	assert.Equal(t, beacon.QuicknetChainHash, cfg.ChainHash)
	assert.Equal(t, 100*time.Millisecond, cfg.Throttle())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoints:\n  - https://drand.internal\nthrottle_ms: 250\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://drand.internal"}, cfg.Endpoints)
	assert.Equal(t, 250*time.Millisecond, cfg.Throttle())

	// Fields absent from the file keep their defaults.
	assert.Equal(t, beacon.QuicknetChainHash, cfg.ChainHash)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoints: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
