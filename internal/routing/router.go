package routing

import (
	"context"
	"encoding/json"
	"fmt"

	"finbrain/internal/judgment"
	"finbrain/internal/logging"
	"finbrain/internal/oracle"
	"finbrain/internal/types"
)

const routerSystemPrompt = `You are a content router for financial analysis. Analyze the provided content and determine which specialist should handle it. Consider:

1. Content Type:
   - earnings: Financial reports, quarterly/annual results, revenue/profit data
   - news: Company news, announcements, press releases
   - market_data: Stock prices, trading volumes, market movements
   - analyst_rating: Research reports, price targets, recommendations
   - economic_indicator: GDP, inflation, employment data, central bank news
   - technical_analysis: Chart patterns, technical indicators, price trends

2. Routing Decision Factors:
   - Primary focus of the content
   - Data type and structure
   - Analysis complexity required
   - Time sensitivity
   - Stakeholder impact

Return your routing decision in this JSON format:
{
    "content_type": "earnings|news|market_data|analyst_rating|economic_indicator|technical_analysis",
    "specialist": "earnings_analyst|news_analyst|market_analyst|technical_analyst|economic_analyst|general_analyst",
    "confidence": 0.95,
    "reasoning": "Brief explanation of routing decision",
    "priority": "high|medium|low",
    "estimated_complexity": "simple|moderate|complex"
}`

// Router classifies content and picks the specialist that should handle it.
type Router struct {
	client oracle.Client
}

// NewRouter creates a router.
func NewRouter(client oracle.Client) *Router {
	return &Router{client: client}
}

// Route classifies content. Routing is total: an oracle transport failure
// is the only error; an unparseable or out-of-enum judgment degrades to
// the general-analyst fallback decision.
func (r *Router) Route(ctx context.Context, content map[string]any) (types.RoutingDecision, error) {
	contentJSON, _ := json.Marshal(content)
	user := fmt.Sprintf("Route this content to the appropriate specialist: %s", contentJSON)

	raw, err := r.client.CompleteWithSystem(ctx, routerSystemPrompt, user)
	if err != nil {
		return types.RoutingDecision{}, fmt.Errorf("routing call failed: %w", err)
	}

	j, err := judgment.Parse(raw)
	if err != nil {
		logging.Routing("routing judgment unparseable, falling back to general analyst")
		return fallbackDecision(), nil
	}

	decision := types.RoutingDecision{
		ContentType:         j.StrOr("content_type", string(ContentUnknown)),
		Specialist:          j.StrOr("specialist", string(SpecialistGeneral)),
		Confidence:          j.FloatOr("confidence", 0.5),
		Reasoning:           j.StrOr("reasoning", ""),
		Priority:            j.StrOr("priority", "medium"),
		EstimatedComplexity: j.StrOr("estimated_complexity", "moderate"),
	}

	// Labels outside the closed enums degrade rather than propagate.
	if !ValidContentType(decision.ContentType) || !ValidSpecialist(decision.Specialist) {
		logging.Routing("routing judgment outside enums (%s/%s), falling back",
			decision.ContentType, decision.Specialist)
		return fallbackDecision(), nil
	}

	logging.RoutingDebug("routed content: type=%s specialist=%s confidence=%.2f",
		decision.ContentType, decision.Specialist, decision.Confidence)
	return decision, nil
}

func fallbackDecision() types.RoutingDecision {
	return types.RoutingDecision{
		ContentType:         string(ContentUnknown),
		Specialist:          string(SpecialistGeneral),
		Confidence:          0.5,
		Reasoning:           "Failed to parse routing decision, using general analyst",
		Priority:            "medium",
		EstimatedComplexity: "moderate",
	}
}
