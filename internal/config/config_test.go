package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "openai", cfg.Oracle.Provider)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
	assert.Equal(t, 7.0, cfg.Workflow.QualityThreshold)
	assert.Equal(t, 5, cfg.Workflow.MaxConcurrentCalls)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
oracle:
  provider: gemini
  model: gemini-2.5-pro
  timeout_seconds: 90
workflow:
  max_iterations: 5
  quality_threshold: 8.5
tools:
  news_api_key: file-news-key
logging:
  enabled: true
  level: debug
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.Oracle.Model)
	assert.Equal(t, 90*time.Second, cfg.Oracle.Timeout())
	assert.Equal(t, 5, cfg.Workflow.MaxIterations)
	assert.Equal(t, 8.5, cfg.Workflow.QualityThreshold)
	assert.Equal(t, "file-news-key", cfg.Tools.NewsAPIKey)
	assert.True(t, cfg.Logging.Enabled)
	// Unset sections keep their defaults.
	assert.Equal(t, 5, cfg.Workflow.MaxConcurrentCalls)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oracle: [broken"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FINBRAIN_PROVIDER", "gemini")
	t.Setenv("FINBRAIN_MAX_ITERATIONS", "4")
	t.Setenv("FINBRAIN_QUALITY_THRESHOLD", "9")
	t.Setenv("GEMINI_API_KEY", "env-gemini-key")
	t.Setenv("NEWS_API_KEY", "env-news-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, 4, cfg.Workflow.MaxIterations)
	assert.Equal(t, 9.0, cfg.Workflow.QualityThreshold)
	assert.Equal(t, "env-gemini-key", cfg.Oracle.APIKey)
	assert.Equal(t, "env-news-key", cfg.Tools.NewsAPIKey)
}

func TestFileKeyWinsOverProviderEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oracle:\n  api_key: file-key\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Oracle.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad provider", func(c *Config) { c.Oracle.Provider = "delphi" }, true},
		{"zero iterations", func(c *Config) { c.Workflow.MaxIterations = 0 }, true},
		{"threshold too high", func(c *Config) { c.Workflow.QualityThreshold = 11 }, true},
		{"negative threshold", func(c *Config) { c.Workflow.QualityThreshold = -1 }, true},
		{"zero concurrency", func(c *Config) { c.Workflow.MaxConcurrentCalls = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "whisper" }, true},
		{"gemini provider ok", func(c *Config) { c.Oracle.Provider = "gemini" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Workflow.QualityThreshold = 8.0
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8.0, loaded.Workflow.QualityThreshold)
}
