package refine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"finbrain/internal/types"
)

// mockClient scripts oracle responses. Evaluator and optimizer calls are
// told apart by their system prompts.
type mockClient struct {
	evalResponses []string
	evalCalls     int32
	optResponse   string
	optCalls      int32
	totalCalls    int32
	failAfter     int32  // when > 0, calls beyond this count fail
	failOn        string // when set, calls whose user prompt contains it fail
	err           error
}

func evalJSON(score float64) string {
	rating := "poor"
	switch {
	case score >= 9:
		rating = "excellent"
	case score >= 7:
		rating = "good"
	case score >= 5:
		rating = "fair"
	}
	return fmt.Sprintf(`{
  "overall_score": %.1f,
  "overall_rating": %q,
  "weaknesses": ["too vague"],
  "priority_improvements": ["add detail"],
  "recommendation": "revise"
}`, score, rating)
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	total := atomic.AddInt32(&m.totalCalls, 1)
	if m.failAfter > 0 && total > m.failAfter {
		return "", fmt.Errorf("oracle down")
	}
	if m.failOn != "" && strings.Contains(user, m.failOn) {
		return "", fmt.Errorf("oracle down")
	}
	if strings.Contains(system, "quality evaluator") {
		n := atomic.AddInt32(&m.evalCalls, 1)
		idx := int(n) - 1
		if idx >= len(m.evalResponses) {
			idx = len(m.evalResponses) - 1
		}
		return m.evalResponses[idx], nil
	}
	atomic.AddInt32(&m.optCalls, 1)
	if m.optResponse != "" {
		return m.optResponse, nil
	}
	return "An improved, more detailed analysis.", nil
}

func newWorkflow(t *testing.T, client *mockClient, cfg Config) *Workflow {
	t.Helper()
	w, err := New(client, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestRunStopsWhenThresholdMet(t *testing.T) {
	client := &mockClient{evalResponses: []string{evalJSON(9.0)}}
	w := newWorkflow(t, client, Config{})

	result := w.Run(context.Background(), types.NewTextArtifact("solid analysis"), nil)

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if result.IterationsPerformed != 1 {
		t.Errorf("iterations = %d, want 1", result.IterationsPerformed)
	}
	if !result.ThresholdMet {
		t.Error("threshold should be met")
	}
	if client.optCalls != 0 {
		t.Errorf("optimizer called %d times, want 0", client.optCalls)
	}
	if result.History[0].Optimization != nil {
		t.Error("no optimization should be recorded")
	}
	if result.RunID == "" {
		t.Error("missing run id")
	}
}

func TestRunExhaustsIterationsBelowThreshold(t *testing.T) {
	client := &mockClient{evalResponses: []string{evalJSON(4.0), evalJSON(5.0), evalJSON(6.0)}}
	w := newWorkflow(t, client, Config{MaxIterations: 3, QualityThreshold: 7.0})

	result := w.Run(context.Background(), types.NewTextArtifact("weak analysis"), nil)

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if result.IterationsPerformed != 3 {
		t.Errorf("iterations = %d, want 3", result.IterationsPerformed)
	}
	if result.ThresholdMet {
		t.Error("threshold should not be met")
	}
	// Final iteration never optimizes.
	if client.optCalls != 2 {
		t.Errorf("optimizer called %d times, want 2", client.optCalls)
	}
	if result.History[2].Optimization != nil {
		t.Error("final iteration must not carry an optimization")
	}
	if result.History[0].Iteration != 0 || result.History[2].Iteration != 2 {
		t.Error("iterations must be zero-based and ordered")
	}

	s := result.Summary
	if s.InitialScore != 4.0 || s.FinalScore != 6.0 || s.BestScore != 6.0 {
		t.Errorf("summary = %+v", s)
	}
	if s.Improvement != 2.0 {
		t.Errorf("improvement = %f, want 2.0", s.Improvement)
	}
}

func TestRunFlatScoresTerminate(t *testing.T) {
	client := &mockClient{evalResponses: []string{evalJSON(6.0), evalJSON(6.0), evalJSON(6.0)}}
	w := newWorkflow(t, client, Config{MaxIterations: 3, QualityThreshold: 8.0})

	result := w.Run(context.Background(), types.NewTextArtifact("stagnant analysis"), nil)

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if result.IterationsPerformed != 3 || len(result.History) != 3 {
		t.Errorf("iterations = %d, history = %d, want 3/3", result.IterationsPerformed, len(result.History))
	}
	if result.ThresholdMet {
		t.Error("threshold should not be met")
	}
	if result.History[2].Optimization != nil {
		t.Error("final iteration must not carry an optimization")
	}
	if result.Summary.Improvement != 0 {
		t.Errorf("improvement = %f, want 0", result.Summary.Improvement)
	}
}

func TestRunContinuesFromNewestOnRegression(t *testing.T) {
	// Score drops on iteration 2; the workflow keeps the newest artifact
	// and the summary surfaces the best score seen.
	client := &mockClient{
		evalResponses: []string{evalJSON(6.5), evalJSON(5.0), evalJSON(6.0)},
		optResponse:   `{"analysis": "rewritten", "symbol": "AAPL"}`,
	}
	w := newWorkflow(t, client, Config{MaxIterations: 3, QualityThreshold: 8.0})

	result := w.Run(context.Background(), types.NewTextArtifact("initial"), nil)

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if result.Summary.BestScore != 6.5 {
		t.Errorf("best score = %f, want 6.5", result.Summary.BestScore)
	}
	if result.FinalScore != 6.0 {
		t.Errorf("final score = %f, want 6.0", result.FinalScore)
	}
	if result.FinalArtifact["symbol"] != "AAPL" {
		t.Error("final artifact should be the newest revision")
	}
}

func TestRunDegradedEvaluationDrivesRefinement(t *testing.T) {
	// Unparseable judgment falls back to 6.0/fair which sits below the
	// default 7.0 threshold, so refinement continues.
	client := &mockClient{
		evalResponses: []string{"the analysis seems fine to me", evalJSON(8.0)},
	}
	w := newWorkflow(t, client, Config{})

	result := w.Run(context.Background(), types.NewTextArtifact("analysis"), nil)

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	first := result.History[0]
	if first.QualityScore != 6.0 || !first.Evaluation.Degraded {
		t.Errorf("first iteration = score %.1f degraded %v", first.QualityScore, first.Evaluation.Degraded)
	}
	if !result.ThresholdMet || result.IterationsPerformed != 2 {
		t.Errorf("result = met %v iterations %d", result.ThresholdMet, result.IterationsPerformed)
	}
}

func TestRunOracleFailureKeepsPartialHistory(t *testing.T) {
	// First iteration (evaluate + optimize) succeeds, then the oracle dies
	// on the second evaluation.
	client := &mockClient{evalResponses: []string{evalJSON(5.0)}, failAfter: 2}
	w := newWorkflow(t, client, Config{MaxIterations: 3})

	result := w.Run(context.Background(), types.NewTextArtifact("a"), nil)

	if result.Success {
		t.Fatal("run should fail")
	}
	if !strings.Contains(result.Error, "oracle down") {
		t.Errorf("error = %q", result.Error)
	}
	if len(result.History) != 1 {
		t.Errorf("partial history length = %d, want 1", len(result.History))
	}
	if result.FinalScore != 5.0 {
		t.Errorf("final score = %f, want score of last completed iteration", result.FinalScore)
	}
	if result.Cancelled {
		t.Error("oracle failure is not a cancellation")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	client := &mockClient{evalResponses: []string{evalJSON(9.0)}}
	w := newWorkflow(t, client, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := w.Run(ctx, types.NewTextArtifact("a"), nil)
	if result.Success {
		t.Error("cancelled run must not succeed")
	}
	if !result.Cancelled {
		t.Error("result must be marked cancelled")
	}
	if result.IterationsPerformed != 0 {
		t.Errorf("iterations = %d, want 0", result.IterationsPerformed)
	}
}

func TestBatchIsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	ok := &mockClient{evalResponses: []string{evalJSON(8.5)}}
	w := newWorkflow(t, ok, Config{MaxConcurrent: 2})

	artifacts := []types.Artifact{
		{"symbol": "AAPL", "analysis": "a"},
		{"symbol": "MSFT", "analysis": "b"},
		{"symbol": "NVDA", "analysis": "c"},
	}
	results := w.Batch(context.Background(), artifacts, nil)

	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if !r.Success {
			t.Errorf("result %d failed: %s", i, r.Error)
		}
		if r.FinalArtifact["symbol"] != artifacts[i]["symbol"] {
			t.Errorf("result %d out of order: %v", i, r.FinalArtifact["symbol"])
		}
	}

	// One poisoned element does not abort its batch siblings.
	bad := &mockClient{evalResponses: []string{evalJSON(8.5)}, failOn: "MSFT"}
	wBad := newWorkflow(t, bad, Config{MaxConcurrent: 2})
	mixed := wBad.Batch(context.Background(), artifacts, nil)

	if len(mixed) != 3 {
		t.Fatalf("got %d results, want 3", len(mixed))
	}
	succeeded := 0
	for _, r := range mixed {
		if r.Success {
			succeeded++
		}
	}
	if succeeded != 2 {
		t.Errorf("%d results succeeded, want 2", succeeded)
	}
	if mixed[1].Success {
		t.Error("poisoned element must fail")
	}
	if mixed[1].Error == "" {
		t.Error("failed result must carry the error text")
	}
	if !mixed[0].Success || !mixed[2].Success {
		t.Errorf("siblings of the poisoned element must succeed: %v %v", mixed[0].Success, mixed[2].Success)
	}
	if mixed[0].FinalArtifact["symbol"] != "AAPL" || mixed[2].FinalArtifact["symbol"] != "NVDA" {
		t.Error("results out of input order")
	}
}

func TestNewValidation(t *testing.T) {
	client := &mockClient{}
	if _, err := New(client, Config{MaxIterations: -1}); err == nil {
		t.Error("negative max iterations must be rejected")
	}

	w, err := New(client, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := w.Config()
	if cfg.MaxIterations != 3 || cfg.QualityThreshold != 7.0 || cfg.MaxConcurrent != 5 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestComputeStatistics(t *testing.T) {
	results := []types.WorkflowResult{
		{Success: true, ThresholdMet: true, Summary: types.WorkflowSummary{InitialScore: 5, FinalScore: 8, Improvement: 3}},
		{Success: true, Summary: types.WorkflowSummary{InitialScore: 6, FinalScore: 6.5, Improvement: 0.5}},
		{Success: false, Error: "oracle down"},
	}

	stats := ComputeStatistics(results)
	if stats.TotalRuns != 3 || stats.SuccessfulRuns != 2 {
		t.Errorf("counts = %d/%d", stats.SuccessfulRuns, stats.TotalRuns)
	}
	if stats.AverageImprovement != 1.75 {
		t.Errorf("avg improvement = %f", stats.AverageImprovement)
	}
	if stats.ThresholdMetCount != 1 || stats.ThresholdMetPercent != 50 {
		t.Errorf("threshold stats = %d / %f%%", stats.ThresholdMetCount, stats.ThresholdMetPercent)
	}
	if stats.MaxImprovement != 3 || stats.MinImprovement != 0.5 {
		t.Errorf("improvement range = %f..%f", stats.MinImprovement, stats.MaxImprovement)
	}
}
