// Package config loads and validates the finbrain configuration. Settings
// come from a YAML file with environment variables layered on top, so
// deployments can keep API keys out of the file entirely.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// OracleConfig selects and parameterizes the generative backend.
type OracleConfig struct {
	Provider       string `yaml:"provider"` // openai or gemini
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// WorkflowConfig controls the refinement loop.
type WorkflowConfig struct {
	MaxIterations      int     `yaml:"max_iterations"`
	QualityThreshold   float64 `yaml:"quality_threshold"`
	MaxConcurrentCalls int     `yaml:"max_concurrent_calls"`
}

// MemoryConfig controls learning persistence.
type MemoryConfig struct {
	DatabasePath    string `yaml:"database_path"`
	EmbeddingAPIKey string `yaml:"embedding_api_key"`
	EmbeddingModel  string `yaml:"embedding_model"`
}

// ToolsConfig carries the data-provider API keys.
type ToolsConfig struct {
	AlphaVantageKey string `yaml:"alpha_vantage_key"`
	NewsAPIKey      string `yaml:"news_api_key"`
	FREDKey         string `yaml:"fred_key"`
}

// LoggingConfig controls category file logging.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// Config is the full application configuration.
type Config struct {
	Oracle   OracleConfig   `yaml:"oracle"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Memory   MemoryConfig   `yaml:"memory"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfigPath returns the standard config location.
func DefaultConfigPath() string {
	return filepath.Join(".finbrain", "config.yaml")
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			TimeoutSeconds: 120,
		},
		Workflow: WorkflowConfig{
			MaxIterations:      3,
			QualityThreshold:   7.0,
			MaxConcurrentCalls: 5,
		},
		Memory: MemoryConfig{
			DatabasePath: filepath.Join(".finbrain", "memory.db"),
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides layers environment variables over file values.
// FINBRAIN_* variables win over file settings; provider key variables
// fill in only when the file carries no key.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FINBRAIN_PROVIDER"); v != "" {
		c.Oracle.Provider = v
	}
	if v := os.Getenv("FINBRAIN_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}
	if v := os.Getenv("FINBRAIN_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("FINBRAIN_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workflow.MaxIterations = n
		}
	}
	if v := os.Getenv("FINBRAIN_QUALITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Workflow.QualityThreshold = f
		}
	}
	if v := os.Getenv("FINBRAIN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
		c.Logging.Enabled = true
	}

	if c.Oracle.APIKey == "" {
		switch c.Oracle.Provider {
		case "gemini":
			c.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Memory.EmbeddingAPIKey == "" {
		c.Memory.EmbeddingAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Tools.AlphaVantageKey == "" {
		c.Tools.AlphaVantageKey = os.Getenv("ALPHA_VANTAGE_API_KEY")
	}
	if c.Tools.NewsAPIKey == "" {
		c.Tools.NewsAPIKey = os.Getenv("NEWS_API_KEY")
	}
	if c.Tools.FREDKey == "" {
		c.Tools.FREDKey = os.Getenv("FRED_API_KEY")
	}
}

// Validate rejects configurations the workflow cannot honor.
func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	if c.Workflow.MaxIterations < 1 {
		return fmt.Errorf("workflow.max_iterations must be at least 1, got %d", c.Workflow.MaxIterations)
	}
	if c.Workflow.QualityThreshold < 0 || c.Workflow.QualityThreshold > 10 {
		return fmt.Errorf("workflow.quality_threshold must be in [0, 10], got %f", c.Workflow.QualityThreshold)
	}
	if c.Workflow.MaxConcurrentCalls < 1 {
		return fmt.Errorf("workflow.max_concurrent_calls must be at least 1, got %d", c.Workflow.MaxConcurrentCalls)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}
