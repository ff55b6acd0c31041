package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"finbrain/internal/judgment"
	"finbrain/internal/logging"
	"finbrain/internal/oracle"
	"finbrain/internal/types"
)

// Fallback values applied when the oracle's judgment cannot be parsed.
const (
	fallbackScore  = 6.0
	fallbackRating = "fair"
)

// A reported overall score this far from the recomputed weighted score
// suggests the oracle did not apply the criterion weights.
const discrepancyLimit = 2.0

// Evaluator scores artifacts against the fixed criterion table by asking
// the oracle for a structured judgment.
type Evaluator struct {
	client   oracle.Client
	criteria *CriteriaSet
}

// NewEvaluator creates an evaluator with the default criteria.
func NewEvaluator(client oracle.Client) *Evaluator {
	return &Evaluator{client: client, criteria: DefaultCriteria()}
}

// NewEvaluatorWithCriteria creates an evaluator with a custom criteria set.
func NewEvaluatorWithCriteria(client oracle.Client, criteria *CriteriaSet) *Evaluator {
	return &Evaluator{client: client, criteria: criteria}
}

// Criteria returns the evaluator's criteria set.
func (e *Evaluator) Criteria() *CriteriaSet {
	return e.criteria
}

func (e *Evaluator) systemPrompt() string {
	return fmt.Sprintf(`You are a senior financial analysis quality evaluator. Evaluate the provided analysis against these specific criteria:

%s
For each criterion, provide:
1. Score (1-10 scale where 10 is excellent)
2. Rating (poor/fair/good/excellent)
3. Specific feedback explaining the score
4. Suggestions for improvement

Return evaluation in this JSON format:
{
    "overall_score": 8.5,
    "overall_rating": "good",
    "criteria_scores": {
        "accuracy": {"score": 9, "rating": "excellent", "feedback": "...", "improvements": ["..."]},
        "completeness": {"score": 7, "rating": "good", "feedback": "...", "improvements": ["..."]}
    },
    "weighted_score": 8.2,
    "strengths": ["strength1", "strength2"],
    "weaknesses": ["weakness1", "weakness2"],
    "priority_improvements": ["improvement1", "improvement2"],
    "recommendation": "approve|revise|reject"
}`, e.criteria.FormatForPrompt())
}

func userPrompt(artifact types.Artifact, evalCtx map[string]any) string {
	analysisJSON, _ := json.Marshal(artifact)
	ctxText := "No additional context provided"
	if len(evalCtx) > 0 {
		if b, err := json.Marshal(evalCtx); err == nil {
			ctxText = string(b)
		}
	}
	return fmt.Sprintf(`Evaluate this financial analysis:

Analysis: %s
Context: %s

Provide comprehensive quality evaluation.`, analysisJSON, ctxText)
}

// Evaluate scores an artifact. A malformed oracle response produces the
// fixed neutral fallback rather than an error; only transport failures
// surface as errors.
func (e *Evaluator) Evaluate(ctx context.Context, artifact types.Artifact, evalCtx map[string]any) (types.EvaluationResult, error) {
	timer := logging.StartTimer(logging.CategoryEvaluation, "evaluate")
	defer timer.Stop()

	raw, err := e.client.CompleteWithSystem(ctx, e.systemPrompt(), userPrompt(artifact, evalCtx))
	if err != nil {
		return types.EvaluationResult{}, fmt.Errorf("evaluation call failed: %w", err)
	}

	j, err := judgment.Parse(raw)
	if err != nil {
		logging.Evaluation("judgment parse failed, applying fallback score %.1f", fallbackScore)
		return fallbackEvaluation(raw), nil
	}

	result := types.EvaluationResult{
		OverallScore:         j.FloatOr("overall_score", 0),
		OverallRating:        j.StrOr("overall_rating", "unknown"),
		WeightedScore:        j.FloatOr("weighted_score", 0),
		Strengths:            j.Strs("strengths"),
		Weaknesses:           j.Strs("weaknesses"),
		PriorityImprovements: j.Strs("priority_improvements"),
		Recommendation:       j.StrOr("recommendation", ""),
		EvaluatedAt:          time.Now(),
	}

	if scores, ok := j.Map("criteria_scores"); ok {
		result.CriteriaScores = parseCriteriaScores(scores)
	}

	// Cross-check the reported score against our own weighted sum. A large
	// gap means the judgment ignored the weights and should not drive
	// refinement decisions at face value.
	if len(result.CriteriaScores) > 0 {
		perMetric := make(map[string]float64, len(result.CriteriaScores))
		for metric, cs := range result.CriteriaScores {
			perMetric[metric] = cs.Score
		}
		recomputed := e.criteria.WeightedScore(perMetric)
		if result.WeightedScore == 0 {
			result.WeightedScore = recomputed
		}
		if math.Abs(recomputed-result.OverallScore) > discrepancyLimit {
			logging.Evaluation("score discrepancy: reported=%.2f recomputed=%.2f", result.OverallScore, recomputed)
			result.Degraded = true
		}
	}

	logging.Evaluation("evaluated artifact: score=%.1f rating=%s recommendation=%s",
		result.OverallScore, result.OverallRating, result.Recommendation)
	return result, nil
}

func parseCriteriaScores(scores judgment.Judgment) map[string]types.CriterionScore {
	out := make(map[string]types.CriterionScore, len(scores))
	for metric := range scores {
		entry, ok := scores.Map(metric)
		if !ok {
			continue
		}
		out[metric] = types.CriterionScore{
			Score:        entry.FloatOr("score", 0),
			Rating:       entry.StrOr("rating", ""),
			Feedback:     entry.StrOr("feedback", ""),
			Improvements: entry.Strs("improvements"),
		}
	}
	return out
}

func fallbackEvaluation(raw string) types.EvaluationResult {
	return types.EvaluationResult{
		OverallScore:  fallbackScore,
		OverallRating: fallbackRating,
		Degraded:      true,
		RawResponse:   raw,
		EvaluatedAt:   time.Now(),
	}
}
