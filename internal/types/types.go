// Package types holds the shared value types passed between the finbrain
// workflow layers. Everything here is plain data: no component mutates a
// value it did not create, and each refinement step produces a new Artifact
// rather than editing the previous one in place.
package types

import "time"

// NarrativeField is the designated free-text field of a structured artifact.
// When an optimizer responds with prose instead of JSON, only this field of
// the current artifact is replaced, preserving identifiers and other
// structured fields.
const NarrativeField = "analysis"

// Artifact is the work product under refinement: a loose key/value structure
// (typically an analysis report). Text-only artifacts are represented as a
// single NarrativeField entry.
type Artifact map[string]any

// NewTextArtifact wraps free text as a single-field artifact.
func NewTextArtifact(text string) Artifact {
	return Artifact{NarrativeField: text}
}

// Clone returns a shallow copy. Values are treated as immutable by all
// workflow stages, so a shallow copy is a sufficient snapshot.
func (a Artifact) Clone() Artifact {
	if a == nil {
		return nil
	}
	out := make(Artifact, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Narrative returns the narrative field if present and textual.
func (a Artifact) Narrative() (string, bool) {
	v, ok := a[NarrativeField]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// CriterionScore is the oracle's judgment of one evaluation criterion.
type CriterionScore struct {
	Score        float64  `json:"score"`
	Rating       string   `json:"rating"` // poor, fair, good, excellent
	Feedback     string   `json:"feedback"`
	Improvements []string `json:"improvements,omitempty"`
}

// EvaluationResult is the outcome of scoring an artifact against the fixed
// criterion table. Degraded marks a fallback result produced because the
// oracle's judgment text could not be parsed; its scores are the fixed
// neutral values, not derived from the malformed text.
type EvaluationResult struct {
	OverallScore         float64                   `json:"overall_score"`
	OverallRating        string                    `json:"overall_rating"`
	WeightedScore        float64                   `json:"weighted_score"`
	CriteriaScores       map[string]CriterionScore `json:"criteria_scores,omitempty"`
	Strengths            []string                  `json:"strengths,omitempty"`
	Weaknesses           []string                  `json:"weaknesses,omitempty"`
	PriorityImprovements []string                  `json:"priority_improvements,omitempty"`
	Recommendation       string                    `json:"recommendation,omitempty"` // approve, revise, reject
	Degraded             bool                      `json:"degraded"`
	RawResponse          string                    `json:"raw_response,omitempty"` // preserved for diagnostics on degraded results
	EvaluatedAt          time.Time                 `json:"evaluated_at"`
}

// OptimizationResult is the optimizer's revision of an artifact.
type OptimizationResult struct {
	OptimizedText           string    `json:"optimized_text"`
	AddressedWeaknesses     []string  `json:"addressed_weaknesses,omitempty"`
	ImplementedImprovements []string  `json:"implemented_improvements,omitempty"`
	BasedOnScore            float64   `json:"based_on_score"`
	OptimizedAt             time.Time `json:"optimized_at"`
}

// IterationRecord captures one evaluate(-optimize) cycle. Records are
// immutable once appended; the workflow owns the ordered sequence for the
// duration of a run.
type IterationRecord struct {
	Iteration    int                 `json:"iteration"` // zero-based
	Artifact     Artifact            `json:"artifact"`
	Evaluation   EvaluationResult    `json:"evaluation"`
	QualityScore float64             `json:"quality_score"`
	Optimization *OptimizationResult `json:"optimization,omitempty"`
	ThresholdMet bool                `json:"threshold_met"`
	Timestamp    time.Time           `json:"timestamp"`
}

// WorkflowSummary condenses a run for persistence and reporting.
type WorkflowSummary struct {
	InitialScore  float64 `json:"initial_score"`
	FinalScore    float64 `json:"final_score"`
	BestScore     float64 `json:"best_score"`
	Improvement   float64 `json:"improvement"`
	Threshold     float64 `json:"threshold"`
	MaxIterations int     `json:"max_iterations"`
}

// WorkflowResult is the outcome of one refinement run. On a hard oracle
// failure mid-loop, Success is false, Error carries the cause, and History
// retains every iteration completed before the failure.
type WorkflowResult struct {
	RunID               string            `json:"run_id"`
	Success             bool              `json:"success"`
	Error               string            `json:"error,omitempty"`
	Cancelled           bool              `json:"cancelled,omitempty"`
	FinalArtifact       Artifact          `json:"final_artifact,omitempty"`
	FinalEvaluation     EvaluationResult  `json:"final_evaluation"`
	FinalScore          float64           `json:"final_score"`
	IterationsPerformed int               `json:"iterations_performed"`
	ThresholdMet        bool              `json:"threshold_met"`
	History             []IterationRecord `json:"history,omitempty"`
	Summary             WorkflowSummary   `json:"summary"`
	ProcessedAt         time.Time         `json:"processed_at"`
}

// RoutingDecision is the classifier's verdict on a piece of content.
type RoutingDecision struct {
	ContentType         string  `json:"content_type"`
	Specialist          string  `json:"specialist"`
	Confidence          float64 `json:"confidence"`
	Reasoning           string  `json:"reasoning,omitempty"`
	Priority            string  `json:"priority"`             // high, medium, low
	EstimatedComplexity string  `json:"estimated_complexity"` // simple, moderate, complex
}

// SpecialistResult is the output of one specialist analyzer.
type SpecialistResult struct {
	Specialist   string    `json:"specialist"`
	Analysis     string    `json:"analysis"`
	AnalysisType string    `json:"analysis_type"`
	FocusAreas   []string  `json:"focus_areas,omitempty"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
}

// DispatchResult pairs a routing decision with its specialist analysis.
// Batch dispatch captures per-item failures here instead of aborting
// sibling items.
type DispatchResult struct {
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Routing     RoutingDecision   `json:"routing_decision"`
	Analysis    *SpecialistResult `json:"specialist_analysis,omitempty"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// LearningRecord is a run summary persisted to the memory store so future
// runs can retrieve what worked.
type LearningRecord struct {
	ID               string         `json:"id"`
	AgentType        string         `json:"agent_type"`
	Symbol           string         `json:"symbol"`
	Content          map[string]any `json:"content"`
	PerformanceScore float64        `json:"performance_score"`
	Importance       float64        `json:"importance"`
	CreatedAt        time.Time      `json:"created_at"`
}
