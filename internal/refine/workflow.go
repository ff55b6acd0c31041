package refine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"finbrain/internal/evaluation"
	"finbrain/internal/logging"
	"finbrain/internal/oracle"
	"finbrain/internal/types"
)

// Config controls a refinement workflow.
type Config struct {
	MaxIterations    int     // evaluate(-optimize) cycles per run, default 3
	QualityThreshold float64 // overall score that stops refinement, default 7.0
	MaxConcurrent    int     // batch fan-out limit, default 5
}

// DefaultConfig returns the standard workflow configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    3,
		QualityThreshold: 7.0,
		MaxConcurrent:    5,
	}
}

// Workflow runs the evaluate-optimize loop over analysis artifacts.
type Workflow struct {
	evaluator *evaluation.Evaluator
	optimizer *Optimizer
	config    Config
}

// New creates a workflow. Zero config fields take defaults; a negative
// or zero MaxIterations after defaulting is rejected.
func New(client oracle.Client, config Config) (*Workflow, error) {
	if config.MaxIterations == 0 {
		config.MaxIterations = 3
	}
	if config.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be at least 1, got %d", config.MaxIterations)
	}
	if config.QualityThreshold == 0 {
		config.QualityThreshold = 7.0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}
	return &Workflow{
		evaluator: evaluation.NewEvaluator(client),
		optimizer: NewOptimizer(client),
		config:    config,
	}, nil
}

// Config returns the workflow's effective configuration.
func (w *Workflow) Config() Config {
	return w.config
}

// Run refines a single artifact until the quality threshold is met or the
// iteration limit is reached. All state is local to the call; a Workflow
// can run many artifacts concurrently.
//
// Failures never panic the loop: an oracle error or cancellation closes
// the run with Success false and every completed iteration preserved.
func (w *Workflow) Run(ctx context.Context, artifact types.Artifact, runCtx map[string]any) types.WorkflowResult {
	runID := uuid.New().String()
	logging.Workflow("run %s starting: max_iterations=%d threshold=%.1f",
		runID, w.config.MaxIterations, w.config.QualityThreshold)

	history := make([]types.IterationRecord, 0, w.config.MaxIterations)
	current := artifact.Clone()

	for iteration := 0; iteration < w.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return w.closeRun(runID, current, history, err, true)
		}

		eval, err := w.evaluator.Evaluate(ctx, current, runCtx)
		if err != nil {
			return w.closeRun(runID, current, history, err, isCancellation(err))
		}

		score := eval.OverallScore
		logging.Workflow("run %s iteration %d/%d: score=%.1f (%s)",
			runID, iteration+1, w.config.MaxIterations, score, eval.OverallRating)

		record := types.IterationRecord{
			Iteration:    iteration,
			Artifact:     current.Clone(),
			Evaluation:   eval,
			QualityScore: score,
			Timestamp:    time.Now(),
		}

		if score >= w.config.QualityThreshold {
			record.ThresholdMet = true
			history = append(history, record)
			logging.Workflow("run %s threshold met at %.1f", runID, score)
			break
		}

		// No optimization on the final iteration: its output would never
		// be re-evaluated.
		if iteration < w.config.MaxIterations-1 {
			opt, err := w.optimizer.Optimize(ctx, current, eval, runCtx)
			if err != nil {
				history = append(history, record)
				return w.closeRun(runID, current, history, err, isCancellation(err))
			}
			current = mergeArtifact(current, opt.OptimizedText)
			record.Optimization = &opt
		}

		history = append(history, record)
	}

	return w.finalize(runID, current, history)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// closeRun produces a failed result carrying the partial history.
func (w *Workflow) closeRun(runID string, current types.Artifact, history []types.IterationRecord, cause error, cancelled bool) types.WorkflowResult {
	logging.Workflow("run %s aborted after %d iterations: %v", runID, len(history), cause)

	result := types.WorkflowResult{
		RunID:               runID,
		Success:             false,
		Error:               cause.Error(),
		Cancelled:           cancelled,
		FinalArtifact:       current,
		IterationsPerformed: len(history),
		History:             history,
		ProcessedAt:         time.Now(),
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		result.FinalEvaluation = last.Evaluation
		result.FinalScore = last.QualityScore
		result.Summary = w.summarize(history)
	}
	return result
}

func (w *Workflow) finalize(runID string, current types.Artifact, history []types.IterationRecord) types.WorkflowResult {
	last := history[len(history)-1]
	result := types.WorkflowResult{
		RunID:               runID,
		Success:             true,
		FinalArtifact:       current,
		FinalEvaluation:     last.Evaluation,
		FinalScore:          last.QualityScore,
		IterationsPerformed: len(history),
		ThresholdMet:        last.QualityScore >= w.config.QualityThreshold,
		History:             history,
		Summary:             w.summarize(history),
		ProcessedAt:         time.Now(),
	}
	logging.Workflow("run %s finished: score=%.1f threshold_met=%v iterations=%d",
		runID, result.FinalScore, result.ThresholdMet, result.IterationsPerformed)
	return result
}

func (w *Workflow) summarize(history []types.IterationRecord) types.WorkflowSummary {
	initial := history[0].QualityScore
	final := history[len(history)-1].QualityScore
	best := initial
	for _, rec := range history {
		if rec.QualityScore > best {
			best = rec.QualityScore
		}
	}
	return types.WorkflowSummary{
		InitialScore:  initial,
		FinalScore:    final,
		BestScore:     best,
		Improvement:   final - initial,
		Threshold:     w.config.QualityThreshold,
		MaxIterations: w.config.MaxIterations,
	}
}

// Batch refines multiple artifacts concurrently. Results preserve input
// order and one artifact's failure never aborts its siblings.
func (w *Workflow) Batch(ctx context.Context, artifacts []types.Artifact, runCtx map[string]any) []types.WorkflowResult {
	results := make([]types.WorkflowResult, len(artifacts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrent)
	for i, artifact := range artifacts {
		g.Go(func() error {
			results[i] = w.Run(gctx, artifact, runCtx)
			return nil
		})
	}
	g.Wait()
	return results
}

// Statistics aggregates quality numbers across batch results.
type Statistics struct {
	TotalRuns            int     `json:"total_runs"`
	SuccessfulRuns       int     `json:"successful_runs"`
	AverageInitialScore  float64 `json:"average_initial_score"`
	AverageFinalScore    float64 `json:"average_final_score"`
	AverageImprovement   float64 `json:"average_improvement"`
	ThresholdMetCount    int     `json:"threshold_met_count"`
	ThresholdMetPercent  float64 `json:"threshold_met_percent"`
	MaxImprovement       float64 `json:"max_improvement"`
	MinImprovement       float64 `json:"min_improvement"`
}

// ComputeStatistics summarizes a set of workflow results. Failed runs
// count toward TotalRuns only.
func ComputeStatistics(results []types.WorkflowResult) Statistics {
	stats := Statistics{TotalRuns: len(results)}

	var initial, final, improvement float64
	first := true
	for _, r := range results {
		if !r.Success {
			continue
		}
		stats.SuccessfulRuns++
		initial += r.Summary.InitialScore
		final += r.Summary.FinalScore
		improvement += r.Summary.Improvement
		if r.ThresholdMet {
			stats.ThresholdMetCount++
		}
		if first || r.Summary.Improvement > stats.MaxImprovement {
			stats.MaxImprovement = r.Summary.Improvement
		}
		if first || r.Summary.Improvement < stats.MinImprovement {
			stats.MinImprovement = r.Summary.Improvement
		}
		first = false
	}

	if stats.SuccessfulRuns > 0 {
		n := float64(stats.SuccessfulRuns)
		stats.AverageInitialScore = initial / n
		stats.AverageFinalScore = final / n
		stats.AverageImprovement = improvement / n
		stats.ThresholdMetPercent = float64(stats.ThresholdMetCount) / n * 100
	}
	return stats
}
