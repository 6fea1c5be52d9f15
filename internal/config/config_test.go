package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "sqlite", cfg.Search.LexicalBackend)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
version: 1
search:
  rrf_constant: 30
  lexical_backend: bleve
  default_limit: 10
  max_limit: 100
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Search.RRFConstant)
	assert.Equal(t, "bleve", cfg.Search.LexicalBackend)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	// Untouched sections keep defaults.
	assert.Equal(t, 1000, cfg.Bus.HistoryCapacity)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("NEOALEX_RRF_CONSTANT", "90")
	t.Setenv("NEOALEX_LEXICAL_WEIGHT", "0.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Search.RRFConstant)
	assert.InDelta(t, 0.5, cfg.Search.LexicalWeight, 1e-12)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Default()
	cfg.Search.LexicalBackend = "elastic"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeWeights(t *testing.T) {
	cfg := Default()
	cfg.Search.DenseWeight = -0.1
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	cfg := Default()
	cfg.Search.RRFConstant = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.RRFConstant)
}
