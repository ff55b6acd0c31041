package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"finbrain/internal/logging"
	"finbrain/internal/oracle"
	"finbrain/internal/types"
)

// Specialist is a prompt-template analyzer for one content category.
type Specialist struct {
	ID           SpecialistID
	SystemPrompt string
	AnalysisType string
	FocusAreas   []string
	Confidence   float64
}

// SpecialistNotFoundError reports a specialist label with no registered
// analyzer. This is a wiring defect, not a content problem, so dispatch
// surfaces it instead of silently defaulting.
type SpecialistNotFoundError struct {
	Label string
}

func (e *SpecialistNotFoundError) Error() string {
	return fmt.Sprintf("no specialist registered for %q", e.Label)
}

const earningsPrompt = `You are an expert earnings analyst. Analyze financial reports, earnings data, and company financial metrics. Focus on:

1. Financial Performance:
   - Revenue growth and trends
   - Profit margins and profitability
   - Earnings per share (EPS) analysis
   - Cash flow evaluation
   - Balance sheet strength

2. Key Metrics Analysis:
   - Year-over-year comparisons
   - Quarter-over-quarter trends
   - Guidance vs. actual performance
   - Beat/miss analysis

3. Investment Implications:
   - Valuation impact
   - Growth prospects
   - Risk factors
   - Competitive positioning

Provide detailed financial analysis with specific numbers and actionable insights.`

const newsPrompt = `You are an expert news analyst specializing in financial market sentiment. Analyze news content for:

1. Sentiment Analysis:
   - Overall tone (positive/negative/neutral)
   - Market sentiment implications
   - Investor sentiment indicators
   - Public perception impact

2. Market Impact Assessment:
   - Short-term price impact potential
   - Long-term strategic implications
   - Sector-wide effects
   - Competitive landscape changes

3. Risk and Opportunity Identification:
   - Emerging risks from news
   - New opportunities highlighted
   - Regulatory implications
   - Stakeholder impacts

Focus on actionable insights for investment decisions.`

const marketPrompt = `You are an expert market analyst specializing in market data interpretation. Analyze market information for:

1. Price Action Analysis:
   - Price trends and patterns
   - Volume analysis
   - Support and resistance levels
   - Momentum indicators

2. Market Context:
   - Relative performance vs market/sector
   - Trading volume patterns
   - Market breadth indicators
   - Institutional activity signals

3. Trading Implications:
   - Entry/exit points
   - Risk management levels
   - Position sizing considerations
   - Time horizon recommendations

Provide data-driven market insights with specific levels and targets.`

const technicalPrompt = `You are an expert technical analyst. Analyze charts, patterns, and technical indicators:

1. Chart Pattern Analysis:
   - Trend patterns (ascending, descending, sideways)
   - Reversal patterns (head and shoulders, double tops/bottoms)
   - Continuation patterns (flags, pennants, triangles)
   - Candlestick patterns

2. Technical Indicators:
   - Moving averages and crossovers
   - RSI, MACD, Bollinger Bands
   - Support and resistance levels
   - Fibonacci retracements

3. Trading Signals:
   - Buy/sell signals
   - Stop-loss levels
   - Price targets
   - Risk-reward ratios

Provide specific technical levels and actionable trading insights.`

const economicPrompt = `You are an expert macroeconomic analyst. Analyze economic data and indicators:

1. Economic Indicators Analysis:
   - GDP growth and trends
   - Inflation metrics (CPI, PPI)
   - Employment data
   - Interest rates and monetary policy

2. Market Implications:
   - Sector rotation effects
   - Currency impacts
   - Bond market implications
   - Equity market effects

3. Investment Strategy Impact:
   - Asset allocation implications
   - Geographic investment effects
   - Timing considerations
   - Risk management adjustments

Connect economic data to investment opportunities and risks.`

func defaultSpecialists() map[SpecialistID]*Specialist {
	return map[SpecialistID]*Specialist{
		SpecialistEarnings: {
			ID:           SpecialistEarnings,
			SystemPrompt: earningsPrompt,
			AnalysisType: "financial_performance",
			FocusAreas:   []string{"revenue", "eps", "margins", "cash_flow"},
			Confidence:   0.9,
		},
		SpecialistNews: {
			ID:           SpecialistNews,
			SystemPrompt: newsPrompt,
			AnalysisType: "sentiment_and_impact",
			FocusAreas:   []string{"sentiment", "market_impact", "risks", "opportunities"},
			Confidence:   0.85,
		},
		SpecialistMarket: {
			ID:           SpecialistMarket,
			SystemPrompt: marketPrompt,
			AnalysisType: "market_data_analysis",
			FocusAreas:   []string{"price_action", "volume", "trends", "levels"},
			Confidence:   0.88,
		},
		SpecialistTechnical: {
			ID:           SpecialistTechnical,
			SystemPrompt: technicalPrompt,
			AnalysisType: "technical_analysis",
			FocusAreas:   []string{"patterns", "indicators", "levels", "signals"},
			Confidence:   0.82,
		},
		SpecialistEconomic: {
			ID:           SpecialistEconomic,
			SystemPrompt: economicPrompt,
			AnalysisType: "macroeconomic_analysis",
			FocusAreas:   []string{"indicators", "policy", "markets", "strategy"},
			Confidence:   0.87,
		},
	}
}

// Dispatcher routes content through the Router and runs the chosen
// specialist's analysis.
type Dispatcher struct {
	router      *Router
	client      oracle.Client
	specialists map[SpecialistID]*Specialist
	maxParallel int
}

// NewDispatcher creates a dispatcher with the standard specialist roster.
func NewDispatcher(client oracle.Client) *Dispatcher {
	return &Dispatcher{
		router:      NewRouter(client),
		client:      client,
		specialists: defaultSpecialists(),
		maxParallel: 5,
	}
}

// SetMaxParallel bounds DispatchAll fan-out.
func (d *Dispatcher) SetMaxParallel(n int) {
	if n > 0 {
		d.maxParallel = n
	}
}

// lookup resolves a specialist label. The general analyst has no roster
// entry of its own; fallback work goes to the news analyst, which handles
// the broadest content.
func (d *Dispatcher) lookup(label string) (*Specialist, error) {
	id := SpecialistID(label)
	if id == SpecialistGeneral {
		id = SpecialistNews
	}
	s, ok := d.specialists[id]
	if !ok {
		return nil, &SpecialistNotFoundError{Label: label}
	}
	return s, nil
}

// Dispatch runs the specialist named by a routing decision over content.
func (d *Dispatcher) Dispatch(ctx context.Context, decision types.RoutingDecision, content, extra map[string]any) (types.SpecialistResult, error) {
	spec, err := d.lookup(decision.Specialist)
	if err != nil {
		return types.SpecialistResult{}, err
	}

	contentJSON, _ := json.Marshal(content)
	ctxText := "No additional context"
	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			ctxText = string(b)
		}
	}
	user := fmt.Sprintf(`Analyze this content:

Content: %s
Context: %s

Provide comprehensive analysis.`, contentJSON, ctxText)

	analysis, err := d.client.CompleteWithSystem(ctx, spec.SystemPrompt, user)
	if err != nil {
		return types.SpecialistResult{}, fmt.Errorf("%s analysis failed: %w", spec.ID, err)
	}

	logging.Routing("specialist %s completed analysis (%d chars)", spec.ID, len(analysis))
	return types.SpecialistResult{
		Specialist:   string(spec.ID),
		Analysis:     analysis,
		AnalysisType: spec.AnalysisType,
		FocusAreas:   spec.FocusAreas,
		Confidence:   spec.Confidence,
		Timestamp:    time.Now(),
	}, nil
}

// Process routes one piece of content and runs the chosen specialist.
// Failures are captured in the result, never panicked or swallowed.
func (d *Dispatcher) Process(ctx context.Context, content, extra map[string]any) types.DispatchResult {
	result := types.DispatchResult{ProcessedAt: time.Now()}

	decision, err := d.router.Route(ctx, content)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Routing = decision

	analysis, err := d.Dispatch(ctx, decision, content, extra)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Analysis = &analysis
	result.ProcessedAt = time.Now()
	return result
}

// DispatchAll processes multiple pieces of content concurrently. Results
// preserve input order; one item's failure never aborts the others.
func (d *Dispatcher) DispatchAll(ctx context.Context, contents []map[string]any, extra map[string]any) []types.DispatchResult {
	results := make([]types.DispatchResult, len(contents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxParallel)
	for i, content := range contents {
		g.Go(func() error {
			results[i] = d.Process(gctx, content, extra)
			return nil
		})
	}
	g.Wait()
	return results
}
