package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 300, cfg.Pipeline.TargetMs)
	assert.Equal(t, 3000, cfg.Pipeline.TimeoutMs)
	assert.InDelta(t, 0.9, cfg.Pipeline.HighConfidenceBypass, 1e-9)
	assert.Equal(t, 5000, cfg.Cache.MaxEntries)
	assert.Equal(t, KeyTextContext, cfg.Cache.KeyStrategy)
	assert.Equal(t, 3, cfg.Cache.MinPatternOccurrences)
	assert.Equal(t, "majority_vote", cfg.Ensemble.Strategy)
	assert.InDelta(t, 0.7, cfg.Ensemble.MinAgreementRatio, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 3*time.Second, cfg.Pipeline.Timeout())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Cache.MaxEntries)
}

func TestLoadLayeredOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxnav.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: anthropic
  model: claude-haiku
cache:
  max_entries: 123
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-haiku", cfg.LLM.Model)
	assert.Equal(t, 123, cfg.Cache.MaxEntries)
	// Untouched sections keep their defaults.
	assert.Equal(t, "majority_vote", cfg.Ensemble.Strategy)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXNAV_API_KEY", "sk-test")
	t.Setenv("VOXNAV_PROVIDER", "gemini")
	t.Setenv("VOXNAV_MODEL", "gemini-2.0-flash")
	t.Setenv("VOXNAV_DEBUG", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.True(t, cfg.Logging.DebugMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.TimeoutMs = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.MaxEntries = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.KeyStrategy = "everything"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Ensemble.Strategy = "coin_flip"
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxnav.yaml")
	original := Default()
	original.Cache.MaxEntries = 42
	require.NoError(t, original.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Cache.MaxEntries)
}

func TestMsToDurationFallback(t *testing.T) {
	assert.Equal(t, 5*time.Second, msToDuration(0, 5*time.Second))
	assert.Equal(t, 250*time.Millisecond, msToDuration(250, 5*time.Second))
}
