// Package research runs the full investment research pipeline for a stock
// symbol: plan the work, collect provider data, draft an analysis, refine
// it through the quality workflow, and write the final report.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"finbrain/internal/logging"
	"finbrain/internal/memory"
	"finbrain/internal/oracle"
	"finbrain/internal/refine"
	"finbrain/internal/tools"
	"finbrain/internal/types"
)

const plannerPrompt = `You are an expert financial research planner. Given a stock symbol, create a comprehensive research plan that covers all important aspects of investment analysis.

Consider these areas:
1. Company fundamentals (financials, ratios, growth)
2. Market sentiment and news analysis
3. Technical analysis and price trends
4. Industry and sector analysis
5. Risk assessment and competitive analysis

Return a structured list of specific research steps.`

const analystPrompt = `You are an expert financial analyst. Analyze the provided data and generate comprehensive insights about the investment opportunity.

Provide:
1. Key financial highlights
2. Investment thesis (bull and bear cases)
3. Risk factors
4. Valuation assessment
5. Recommendation with reasoning`

const reporterPrompt = `You are a senior financial analyst generating a comprehensive investment research report. Create a professional, well-structured report that investors can use to make informed decisions.

Structure:
1. Executive Summary
2. Company Overview
3. Financial Analysis
4. Investment Thesis
5. Risk Factors
6. Valuation & Recommendation
7. Conclusion`

// Used when the planner's response yields no parseable steps.
var defaultPlan = []string{
	"Analyze company fundamentals",
	"Review recent news",
	"Assess market trends",
}

// Report is the outcome of a full research run.
type Report struct {
	Symbol        string               `json:"symbol"`
	Plan          []string             `json:"research_plan"`
	CollectedData map[string]any       `json:"collected_data,omitempty"`
	Refinement    types.WorkflowResult `json:"refinement"`
	FinalReport   string               `json:"final_report"`
	LearningID    string               `json:"learning_id,omitempty"`
	CompletedAt   time.Time            `json:"completed_at"`
}

// Agent orchestrates the research pipeline. The memory store is optional;
// without one, runs simply aren't persisted.
type Agent struct {
	client   oracle.Client
	workflow *refine.Workflow
	tools    *tools.Manager
	store    *memory.Store
}

// NewAgent creates a research agent.
func NewAgent(client oracle.Client, workflow *refine.Workflow, toolManager *tools.Manager, store *memory.Store) *Agent {
	return &Agent{
		client:   client,
		workflow: workflow,
		tools:    toolManager,
		store:    store,
	}
}

// Research runs the pipeline for one symbol. Stages are strictly
// sequential; the refinement stage absorbs evaluation noise, so the only
// hard failures here are oracle transport errors.
func (a *Agent) Research(ctx context.Context, symbol string) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryResearch, "Agent.Research")
	defer timer.Stop()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	logging.Research("research starting for %s", symbol)

	// Plan.
	plan, err := a.plan(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	logging.Research("%s: plan has %d steps", symbol, len(plan))

	// Collect.
	var collected map[string]any
	if a.tools != nil {
		collected = a.tools.Comprehensive(ctx, symbol)
	}

	// Analyze.
	artifact, err := a.analyze(ctx, symbol, plan, collected)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	// Refine.
	refinement := a.workflow.Run(ctx, artifact, map[string]any{
		"symbol":        symbol,
		"research_plan": plan,
	})
	if !refinement.Success {
		return nil, fmt.Errorf("refinement failed: %s", refinement.Error)
	}
	logging.Research("%s: refinement done, score=%.1f", symbol, refinement.FinalScore)

	// Report.
	finalReport, err := a.report(ctx, symbol, plan, refinement)
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}

	report := &Report{
		Symbol:        symbol,
		Plan:          plan,
		CollectedData: collected,
		Refinement:    refinement,
		FinalReport:   finalReport,
		CompletedAt:   time.Now(),
	}

	// Persist what this run learned. Best effort: a storage hiccup must
	// not discard a finished report.
	if a.store != nil {
		id, err := a.store.SaveLearning(ctx, types.LearningRecord{
			AgentType: "investment_research",
			Symbol:    symbol,
			Content: map[string]any{
				"final_score":   refinement.FinalScore,
				"best_score":    refinement.Summary.BestScore,
				"threshold_met": refinement.ThresholdMet,
				"iterations":    refinement.IterationsPerformed,
				"plan_steps":    len(plan),
			},
			PerformanceScore: refinement.FinalScore,
		})
		if err != nil {
			logging.Research("%s: learning persistence failed: %v", symbol, err)
		} else {
			report.LearningID = id
		}
	}

	logging.Research("research complete for %s", symbol)
	return report, nil
}

func (a *Agent) plan(ctx context.Context, symbol string) ([]string, error) {
	raw, err := a.client.CompleteWithSystem(ctx, plannerPrompt,
		fmt.Sprintf("Create a research plan for stock symbol: %s", symbol))
	if err != nil {
		return nil, err
	}
	return parsePlan(raw), nil
}

func (a *Agent) analyze(ctx context.Context, symbol string, plan []string, collected map[string]any) (types.Artifact, error) {
	collectedJSON, _ := json.MarshalIndent(collected, "", "  ")
	user := fmt.Sprintf(`Analyze this data for %s:

Research Plan: %s
Collected Data: %s

Provide a thorough analysis.`, symbol, strings.Join(plan, "; "), collectedJSON)

	analysis, err := a.client.CompleteWithSystem(ctx, analystPrompt, user)
	if err != nil {
		return nil, err
	}

	return types.Artifact{
		"symbol":                symbol,
		types.NarrativeField:    analysis,
		"analyst":               "Investment Research Agent",
		"analysis_generated_at": time.Now().Format(time.RFC3339),
	}, nil
}

func (a *Agent) report(ctx context.Context, symbol string, plan []string, refinement types.WorkflowResult) (string, error) {
	analysis, _ := refinement.FinalArtifact.Narrative()
	user := fmt.Sprintf(`Generate a comprehensive investment research report for %s:

Research Plan: %s
Analysis: %s
Quality Score: %.1f/10 over %d refinement iterations

Create a professional investment research report.`,
		symbol, strings.Join(plan, "; "), analysis,
		refinement.FinalScore, refinement.IterationsPerformed)

	return a.client.CompleteWithSystem(ctx, reporterPrompt, user)
}

// parsePlan extracts plan steps from a bullet or numbered list. Lines that
// carry no marker are ignored; an empty harvest falls back to the default
// plan.
func parsePlan(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := rune(line[0])
		if r != '-' && r != '*' && !unicode.IsDigit(r) {
			continue
		}
		step := strings.TrimLeft(line, "-*0123456789. ")
		if step = strings.TrimSpace(step); step != "" {
			steps = append(steps, step)
		}
	}
	if len(steps) == 0 {
		return append([]string(nil), defaultPlan...)
	}
	return steps
}
