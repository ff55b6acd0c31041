package oracle

import (
	"fmt"
	"os"
)

// Provider identifies a supported oracle backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // optional model override
	BaseURL  string // optional endpoint override
}

// DetectProvider resolves a provider from environment variables.
// Priority: OPENAI_API_KEY > GEMINI_API_KEY.
func DetectProvider() (*ProviderConfig, error) {
	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}

	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{
				Provider: p.provider,
				APIKey:   key,
			}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; set one of: OPENAI_API_KEY, GEMINI_API_KEY")
}

// NewClient creates an oracle client for the given provider configuration.
func NewClient(cfg *ProviderConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil provider config")
	}
	if cfg.APIKey == "" {
		return nil, ErrUnavailable
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		oc := DefaultOpenAIConfig(cfg.APIKey)
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		return NewOpenAIClientWithConfig(oc), nil
	case ProviderGemini:
		gc := DefaultGeminiConfig(cfg.APIKey)
		if cfg.Model != "" {
			gc.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			gc.BaseURL = cfg.BaseURL
		}
		return NewGeminiClientWithConfig(gc), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// NewClientFromEnv creates an oracle client from environment variables.
func NewClientFromEnv() (Client, error) {
	cfg, err := DetectProvider()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg)
}
