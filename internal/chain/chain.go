// Package chain processes raw news batches through a fixed five-stage
// oracle pipeline: ingest, preprocess, classify, extract, summarize.
// Each stage consumes the previous stage's structured output, so a
// stage that cannot produce decodable JSON stops the chain there.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"finbrain/internal/judgment"
	"finbrain/internal/logging"
	"finbrain/internal/oracle"
)

// Stage names one step of the news processing pipeline.
type Stage string

const (
	StageIngestion      Stage = "ingestion"
	StagePreprocessing  Stage = "preprocessing"
	StageClassification Stage = "classification"
	StageExtraction     Stage = "extraction"
	StageSummarization  Stage = "summarization"
)

const ingestionPrompt = `You are a news data validator. Your job is to:
1. Validate that the input contains valid news articles
2. Check for required fields (title, content, date, source)
3. Filter out invalid or incomplete articles
4. Return a standardized JSON structure

Return only valid articles in this format:
{
    "valid_articles": [
        {
            "title": "article title",
            "content": "article content",
            "date": "publication date",
            "source": "news source",
            "url": "article url if available"
        }
    ],
    "rejected_count": number_of_rejected_articles,
    "rejection_reasons": ["reason1", "reason2"]
}`

const preprocessingPrompt = `You are a text preprocessor for financial news. Clean and prepare the text by:
1. Removing HTML tags and special characters
2. Normalizing text encoding
3. Extracting key entities (companies, people, dates, numbers)
4. Removing duplicate sentences or redundant information
5. Standardizing financial terms and symbols

Return preprocessed articles with extracted entities:
{
    "preprocessed_articles": [
        {
            "title": "cleaned title",
            "content": "cleaned and normalized content",
            "entities": {
                "companies": ["AAPL", "Apple Inc"],
                "people": ["Tim Cook"],
                "dates": ["2024-01-15"],
                "financial_terms": ["earnings", "revenue"],
                "numbers": ["$50B", "15%"]
            },
            "metadata": {
                "word_count": 150,
                "readability_score": "medium"
            }
        }
    ]
}`

const classificationPrompt = `You are a financial news classifier. Classify each article by:

1. News Type:
   - earnings_report
   - merger_acquisition
   - product_launch
   - regulatory_news
   - market_analysis
   - executive_change
   - analyst_rating
   - general_corporate

2. Sentiment: positive, negative, neutral

3. Impact Level: high, medium, low

4. Time Sensitivity: breaking, recent, historical

5. Market Relevance: stock_specific, sector_wide, market_wide

Return classification results:
{
    "classified_articles": [
        {
            "title": "article title",
            "classifications": {
                "news_type": "earnings_report",
                "sentiment": "positive",
                "impact_level": "high",
                "time_sensitivity": "breaking",
                "market_relevance": "stock_specific"
            },
            "confidence_scores": {
                "news_type": 0.95,
                "sentiment": 0.87
            }
        }
    ]
}`

const extractionPrompt = `You are a financial information extractor. From each classified article, extract:

1. Key Facts:
   - Financial figures (revenue, profit, losses)
   - Dates and timelines
   - Company actions or decisions
   - Market performance data

2. Investment Implications:
   - Potential stock price impact
   - Sector implications
   - Risk factors mentioned
   - Growth opportunities

3. Stakeholder Impact:
   - Effect on shareholders
   - Impact on customers
   - Regulatory implications
   - Competitive positioning

Return extracted information:
{
    "extracted_articles": [
        {
            "title": "article title",
            "key_facts": {
                "financial_figures": ["Q3 revenue $50B", "EPS $1.25"],
                "important_dates": ["2024-01-15", "Q4 2024"],
                "company_actions": ["stock buyback program"],
                "market_data": ["stock up 5%"]
            },
            "investment_implications": {
                "price_impact": "positive",
                "sector_effect": "technology sector boost",
                "risk_factors": ["supply chain concerns"],
                "opportunities": ["AI market expansion"]
            },
            "stakeholder_impact": {
                "shareholders": "positive earnings surprise",
                "customers": "new product launch",
                "regulatory": "increased scrutiny",
                "competitive": "market share gain"
            }
        }
    ]
}`

const summarizationPrompt = `You are a financial news summarizer. Create a comprehensive summary that includes:

1. Executive Summary:
   - Most important developments
   - Overall market sentiment
   - Key takeaways for investors

2. Investment Analysis:
   - Bullish factors
   - Bearish factors
   - Neutral factors
   - Overall investment outlook

3. Risk Assessment:
   - Immediate risks
   - Long-term concerns
   - Mitigation strategies

4. Action Items:
   - Recommended actions for investors
   - Monitoring points
   - Timeline considerations

5. Market Context:
   - Broader market implications
   - Sector-wide effects
   - Economic indicators relevance

Make the summary concise but comprehensive, actionable, and investor-focused.`

// Result carries every stage's output plus the terminal state. A failed
// run names the stage that stopped the chain and keeps the outputs of
// the stages that completed before it.
type Result struct {
	Success      bool              `json:"success"`
	FailedStage  Stage             `json:"failed_stage,omitempty"`
	Error        string            `json:"error,omitempty"`
	Ingested     judgment.Judgment `json:"ingested,omitempty"`
	Preprocessed judgment.Judgment `json:"preprocessed,omitempty"`
	Classified   judgment.Judgment `json:"classified,omitempty"`
	Extracted    judgment.Judgment `json:"extracted,omitempty"`
	Summary      string            `json:"final_summary,omitempty"`
	ProcessedAt  time.Time         `json:"processed_at"`

	TotalArticles int `json:"total_articles_processed"`
	ValidArticles int `json:"valid_articles"`
}

// Chain runs news batches through the five stages sequentially.
type Chain struct {
	client oracle.Client
}

func NewChain(client oracle.Client) *Chain {
	return &Chain{client: client}
}

// Process runs articles through the full pipeline. It never returns a Go
// error: failures are reported in the Result with the stage that failed,
// matching the run-to-a-terminal-state contract of the other workflows.
func (c *Chain) Process(ctx context.Context, articles []map[string]any) Result {
	timer := logging.StartTimer(logging.CategoryWorkflow, "Chain.Process")
	defer timer.Stop()

	result := Result{
		ProcessedAt:   time.Now().UTC(),
		TotalArticles: len(articles),
	}

	ingested, err := c.runStage(ctx, StageIngestion, ingestionPrompt,
		"Validate and standardize this news data: %s", articles)
	if err != nil {
		return result.fail(StageIngestion, err)
	}
	result.Ingested = ingested
	result.ValidArticles = countArticles(ingested, "valid_articles")

	preprocessed, err := c.runStage(ctx, StagePreprocessing, preprocessingPrompt,
		"Preprocess these validated articles: %s", ingested)
	if err != nil {
		return result.fail(StagePreprocessing, err)
	}
	result.Preprocessed = preprocessed

	classified, err := c.runStage(ctx, StageClassification, classificationPrompt,
		"Classify these preprocessed articles: %s", preprocessed)
	if err != nil {
		return result.fail(StageClassification, err)
	}
	result.Classified = classified

	extracted, err := c.runStage(ctx, StageExtraction, extractionPrompt,
		"Extract key information from these classified articles: %s", classified)
	if err != nil {
		return result.fail(StageExtraction, err)
	}
	result.Extracted = extracted

	// The summary is prose for a human reader, not a structured judgment.
	payload, err := json.Marshal(extracted)
	if err != nil {
		return result.fail(StageSummarization, err)
	}
	user := fmt.Sprintf("Summarize these extracted articles into actionable investment insights:\n\nExtracted Information: %s\n\nContext: This analysis is for investment decision-making purposes.", payload)
	summary, err := c.client.CompleteWithSystem(ctx, summarizationPrompt, user)
	if err != nil {
		return result.fail(StageSummarization, err)
	}
	result.Summary = summary
	result.Success = true
	logging.Workflow("news chain complete: %d articles in, %d valid", result.TotalArticles, result.ValidArticles)
	return result
}

func (c *Chain) runStage(ctx context.Context, stage Stage, system, userFormat string, input any) (judgment.Judgment, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s input: %w", stage, err)
	}
	logging.WorkflowDebug("news chain stage %s starting (%d byte payload)", stage, len(payload))
	raw, err := c.client.CompleteWithSystem(ctx, system, fmt.Sprintf(userFormat, payload))
	if err != nil {
		return nil, err
	}
	j, err := judgment.Parse(raw)
	if err != nil {
		logging.Workflow("news chain stage %s produced unparseable output", stage)
		return nil, err
	}
	return j, nil
}

func (r Result) fail(stage Stage, err error) Result {
	r.Success = false
	r.FailedStage = stage
	r.Error = err.Error()
	logging.Workflow("news chain stopped at %s: %v", stage, err)
	return r
}

func countArticles(j judgment.Judgment, key string) int {
	items, ok := j[key].([]any)
	if !ok {
		return 0
	}
	return len(items)
}
