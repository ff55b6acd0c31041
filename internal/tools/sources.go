// Package tools fetches market data from external providers. Every source
// treats a missing API key or provider outage as a soft condition: it
// reports the problem inside its payload so research can proceed on
// whatever data the remaining sources deliver.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"finbrain/internal/logging"
)

// Source fetches one provider's data for a symbol.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string) map[string]any
}

func httpGetJSON(ctx context.Context, client *http.Client, rawURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("malformed provider response: %w", err)
	}
	return data, nil
}

// =============================================================================
// ALPHA VANTAGE - company overview and fundamentals
// =============================================================================

// AlphaVantageSource fetches company fundamentals from Alpha Vantage.
type AlphaVantageSource struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewAlphaVantageSource creates a source with the public endpoint.
func NewAlphaVantageSource(apiKey string) *AlphaVantageSource {
	return &AlphaVantageSource{
		APIKey:     apiKey,
		BaseURL:    "https://www.alphavantage.co/query",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *AlphaVantageSource) Name() string { return "alpha_vantage" }

// Fetch retrieves the company OVERVIEW payload.
func (s *AlphaVantageSource) Fetch(ctx context.Context, symbol string) map[string]any {
	if s.APIKey == "" {
		return map[string]any{"symbol": symbol, "error": "ALPHA_VANTAGE_API_KEY not configured"}
	}

	q := url.Values{}
	q.Set("function", "OVERVIEW")
	q.Set("symbol", symbol)
	q.Set("apikey", s.APIKey)

	data, err := httpGetJSON(ctx, s.HTTPClient, s.BaseURL+"?"+q.Encode())
	if err != nil {
		logging.Tools("alpha vantage fetch failed for %s: %v", symbol, err)
		return map[string]any{"symbol": symbol, "error": err.Error()}
	}

	return map[string]any{
		"symbol":    symbol,
		"function":  "OVERVIEW",
		"data":      data,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// =============================================================================
// NEWS API - recent articles
// =============================================================================

// NewsSource fetches recent news articles mentioning a symbol.
type NewsSource struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewNewsSource creates a source against the NewsAPI everything endpoint.
func NewNewsSource(apiKey string) *NewsSource {
	return &NewsSource{
		APIKey:     apiKey,
		BaseURL:    "https://newsapi.org/v2/everything",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *NewsSource) Name() string { return "news" }

// Fetch retrieves up to 20 articles from the last week.
func (s *NewsSource) Fetch(ctx context.Context, symbol string) map[string]any {
	if s.APIKey == "" {
		return map[string]any{"symbol": symbol, "error": "NEWS_API_KEY not configured", "articles": []any{}}
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("%q AND (stock OR shares OR financial OR earnings)", symbol))
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", "20")
	q.Set("from", time.Now().AddDate(0, 0, -7).Format("2006-01-02"))
	q.Set("apiKey", s.APIKey)

	data, err := httpGetJSON(ctx, s.HTTPClient, s.BaseURL+"?"+q.Encode())
	if err != nil {
		logging.Tools("news fetch failed for %s: %v", symbol, err)
		return map[string]any{"symbol": symbol, "error": err.Error(), "articles": []any{}}
	}

	if status, _ := data["status"].(string); status != "ok" {
		msg, _ := data["message"].(string)
		if msg == "" {
			msg = "failed to fetch news"
		}
		return map[string]any{"symbol": symbol, "error": msg, "articles": []any{}}
	}

	var articles []map[string]any
	if raw, ok := data["articles"].([]any); ok {
		for _, a := range raw {
			item, ok := a.(map[string]any)
			if !ok {
				continue
			}
			source := map[string]any{}
			if sm, ok := item["source"].(map[string]any); ok {
				source = sm
			}
			articles = append(articles, map[string]any{
				"title":        item["title"],
				"description":  item["description"],
				"url":          item["url"],
				"published_at": item["publishedAt"],
				"source":       source["name"],
			})
		}
	}

	return map[string]any{
		"symbol":        symbol,
		"articles":      articles,
		"total_results": data["totalResults"],
		"timestamp":     time.Now().Format(time.RFC3339),
	}
}

// =============================================================================
// FRED - macroeconomic series
// =============================================================================

// EconSource fetches economic series observations from FRED.
type EconSource struct {
	APIKey     string
	BaseURL    string
	SeriesIDs  []string
	HTTPClient *http.Client
}

// NewEconSource creates a source over the standard macro series.
func NewEconSource(apiKey string) *EconSource {
	return &EconSource{
		APIKey:     apiKey,
		BaseURL:    "https://api.stlouisfed.org/fred/series/observations",
		SeriesIDs:  []string{"GDP", "UNRATE", "FEDFUNDS"},
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *EconSource) Name() string { return "economic_indicators" }

// Fetch retrieves the latest observations for each configured series.
// The symbol is ignored: macro series are market-wide.
func (s *EconSource) Fetch(ctx context.Context, symbol string) map[string]any {
	if s.APIKey == "" {
		return map[string]any{"error": "FRED_API_KEY not configured", "data": []any{}}
	}

	series := make(map[string]any, len(s.SeriesIDs))
	for _, id := range s.SeriesIDs {
		series[id] = s.fetchSeries(ctx, id)
	}
	return map[string]any{
		"series":    series,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (s *EconSource) fetchSeries(ctx context.Context, seriesID string) map[string]any {
	q := url.Values{}
	q.Set("series_id", seriesID)
	q.Set("api_key", s.APIKey)
	q.Set("file_type", "json")
	q.Set("limit", "100")
	q.Set("sort_order", "desc")

	data, err := httpGetJSON(ctx, s.HTTPClient, s.BaseURL+"?"+q.Encode())
	if err != nil {
		logging.Tools("fred fetch failed for %s: %v", seriesID, err)
		return map[string]any{"series_id": seriesID, "error": err.Error(), "data": []any{}}
	}

	observations, _ := data["observations"].([]any)
	if len(observations) > 20 {
		observations = observations[:20]
	}
	return map[string]any{
		"series_id": seriesID,
		"data":      observations,
	}
}
