package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"finbrain/internal/logging"
	"finbrain/internal/oracle"
	"finbrain/internal/types"
)

const optimizerSystemPrompt = `You are an expert financial analysis optimizer. Your job is to improve the analysis based on the quality evaluation feedback provided.

Focus on:
1. Addressing specific weaknesses identified in the evaluation
2. Enhancing strengths while maintaining quality
3. Implementing priority improvements
4. Ensuring the optimized analysis meets high standards

Guidelines:
- Maintain factual accuracy and data integrity
- Improve clarity and actionability
- Add missing elements for completeness
- Enhance risk assessment if needed
- Provide more specific and implementable recommendations
- Ensure logical flow and structure

Return the optimized analysis maintaining the original structure but with improvements.`

// Optimizer revises artifacts using evaluation feedback.
type Optimizer struct {
	client oracle.Client
}

// NewOptimizer creates an optimizer.
func NewOptimizer(client oracle.Client) *Optimizer {
	return &Optimizer{client: client}
}

// Optimize asks the oracle for an improved revision of the artifact.
func (o *Optimizer) Optimize(ctx context.Context, artifact types.Artifact, eval types.EvaluationResult, optCtx map[string]any) (types.OptimizationResult, error) {
	timer := logging.StartTimer(logging.CategoryWorkflow, "optimize")
	defer timer.Stop()

	artifactJSON, _ := json.Marshal(artifact)
	evalJSON, _ := json.Marshal(eval)
	ctxText := "No additional context"
	if len(optCtx) > 0 {
		if b, err := json.Marshal(optCtx); err == nil {
			ctxText = string(b)
		}
	}

	user := fmt.Sprintf(`Optimize this financial analysis:

Original Analysis: %s

Quality Evaluation: %s

Context: %s

Provide an improved version addressing the evaluation feedback.`, artifactJSON, evalJSON, ctxText)

	revised, err := o.client.CompleteWithSystem(ctx, optimizerSystemPrompt, user)
	if err != nil {
		return types.OptimizationResult{}, fmt.Errorf("optimization call failed: %w", err)
	}

	return types.OptimizationResult{
		OptimizedText:           revised,
		AddressedWeaknesses:     eval.Weaknesses,
		ImplementedImprovements: eval.PriorityImprovements,
		BasedOnScore:            eval.OverallScore,
		OptimizedAt:             time.Now(),
	}, nil
}

// mergeArtifact folds optimizer output back into an artifact. Structured
// JSON replaces the artifact wholesale; otherwise the revision replaces
// the narrative field, wrapping plain text into a fresh artifact when the
// original has no such field.
func mergeArtifact(current types.Artifact, optimizedText string) types.Artifact {
	trimmed := strings.TrimSpace(optimizedText)
	if strings.HasPrefix(trimmed, "{") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return types.Artifact(parsed)
		}
	}

	if current != nil {
		if _, ok := current[types.NarrativeField]; ok {
			next := current.Clone()
			next[types.NarrativeField] = optimizedText
			return next
		}
	}
	return types.NewTextArtifact(optimizedText)
}
