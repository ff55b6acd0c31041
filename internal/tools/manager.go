package tools

import (
	"context"
	"sync"
	"time"

	"finbrain/internal/logging"
)

// Manager coordinates all data sources for a research run.
type Manager struct {
	sources []Source
}

// Config carries the provider API keys.
type Config struct {
	AlphaVantageKey string
	NewsAPIKey      string
	FREDKey         string
}

// NewManager wires up the standard source roster.
func NewManager(cfg Config) *Manager {
	return &Manager{
		sources: []Source{
			NewAlphaVantageSource(cfg.AlphaVantageKey),
			NewNewsSource(cfg.NewsAPIKey),
			NewEconSource(cfg.FREDKey),
		},
	}
}

// NewManagerWithSources builds a manager over an explicit source list.
func NewManagerWithSources(sources ...Source) *Manager {
	return &Manager{sources: sources}
}

// Comprehensive fans out to every source concurrently and collects their
// payloads under the source names. A failing source contributes its error
// payload; it never blocks or aborts the others.
func (m *Manager) Comprehensive(ctx context.Context, symbol string) map[string]any {
	timer := logging.StartTimer(logging.CategoryTools, "Manager.Comprehensive")
	defer timer.Stop()

	results := make([]map[string]any, len(m.sources))
	var wg sync.WaitGroup
	for i, src := range m.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = src.Fetch(ctx, symbol)
		}()
	}
	wg.Wait()

	out := map[string]any{
		"symbol":    symbol,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for i, src := range m.sources {
		out[src.Name()] = results[i]
	}

	logging.Tools("comprehensive fetch for %s: %d sources", symbol, len(m.sources))
	return out
}
