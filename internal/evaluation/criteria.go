package evaluation

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Metric identifies one quality dimension of a financial analysis.
type Metric string

const (
	MetricAccuracy       Metric = "accuracy"
	MetricCompleteness   Metric = "completeness"
	MetricRelevance      Metric = "relevance"
	MetricActionability  Metric = "actionability"
	MetricClarity        Metric = "clarity"
	MetricTimeliness     Metric = "timeliness"
	MetricRiskAssessment Metric = "risk_assessment"
	MetricDataQuality    Metric = "data_quality"
)

// Benchmarks describes what each rating band looks like for a criterion.
type Benchmarks struct {
	Excellent string
	Good      string
	Fair      string
	Poor      string
}

// Criterion is one weighted quality dimension with its rating benchmarks.
type Criterion struct {
	Metric      Metric
	Description string
	Weight      float64
	Benchmarks  Benchmarks
}

// CriteriaSet is an ordered collection of criteria whose weights sum to 1.0.
type CriteriaSet struct {
	criteria []Criterion
	byMetric map[Metric]Criterion
}

const weightTolerance = 1e-6

// ErrInvariant reports a criteria set that violates a construction
// invariant. Callers can use errors.Is to distinguish configuration
// defects from runtime conditions.
var ErrInvariant = errors.New("criteria invariant violated")

// NewCriteriaSet validates the criteria and returns a set.
// Weights must sum to 1.0 within tolerance; violating this is a
// configuration error, not a runtime condition.
func NewCriteriaSet(criteria []Criterion) (*CriteriaSet, error) {
	if len(criteria) == 0 {
		return nil, fmt.Errorf("%w: criteria set cannot be empty", ErrInvariant)
	}
	sum := 0.0
	byMetric := make(map[Metric]Criterion, len(criteria))
	for _, c := range criteria {
		if c.Weight < 0 {
			return nil, fmt.Errorf("%w: criterion %s has negative weight %f", ErrInvariant, c.Metric, c.Weight)
		}
		if _, dup := byMetric[c.Metric]; dup {
			return nil, fmt.Errorf("%w: duplicate criterion %s", ErrInvariant, c.Metric)
		}
		byMetric[c.Metric] = c
		sum += c.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, fmt.Errorf("%w: weights sum to %f, expected 1.0", ErrInvariant, sum)
	}
	return &CriteriaSet{criteria: criteria, byMetric: byMetric}, nil
}

// DefaultCriteria returns the standard eight-criterion set for
// financial analysis quality.
func DefaultCriteria() *CriteriaSet {
	set, err := NewCriteriaSet([]Criterion{
		{
			Metric:      MetricAccuracy,
			Description: "Factual correctness and precision of data and analysis",
			Weight:      0.20,
			Benchmarks: Benchmarks{
				Excellent: "All facts verified, calculations correct, no material errors",
				Good:      "Minor factual issues, calculations mostly correct",
				Fair:      "Some factual errors, calculation mistakes present",
				Poor:      "Significant factual errors, unreliable calculations",
			},
		},
		{
			Metric:      MetricCompleteness,
			Description: "Coverage of all relevant aspects and thoroughness",
			Weight:      0.15,
			Benchmarks: Benchmarks{
				Excellent: "Comprehensive coverage, all key aspects addressed",
				Good:      "Most aspects covered, minimal gaps",
				Fair:      "Some important aspects missing",
				Poor:      "Significant gaps in analysis",
			},
		},
		{
			Metric:      MetricRelevance,
			Description: "Pertinence to investment decision-making",
			Weight:      0.15,
			Benchmarks: Benchmarks{
				Excellent: "Highly relevant insights for investment decisions",
				Good:      "Mostly relevant with some tangential content",
				Fair:      "Some relevance but includes unnecessary information",
				Poor:      "Low relevance to investment decisions",
			},
		},
		{
			Metric:      MetricActionability,
			Description: "Clear, implementable recommendations and insights",
			Weight:      0.15,
			Benchmarks: Benchmarks{
				Excellent: "Clear, specific, implementable recommendations",
				Good:      "Generally actionable with minor ambiguity",
				Fair:      "Some actionable elements but lacks specificity",
				Poor:      "Vague, difficult to implement recommendations",
			},
		},
		{
			Metric:      MetricClarity,
			Description: "Clear communication and logical structure",
			Weight:      0.10,
			Benchmarks: Benchmarks{
				Excellent: "Crystal clear, well-structured, easy to understand",
				Good:      "Generally clear with minor confusion points",
				Fair:      "Somewhat unclear, structure issues",
				Poor:      "Confusing, poorly structured",
			},
		},
		{
			Metric:      MetricTimeliness,
			Description: "Relevance to current market conditions and timing",
			Weight:      0.10,
			Benchmarks: Benchmarks{
				Excellent: "Highly current, considers latest market conditions",
				Good:      "Mostly current with minor outdated elements",
				Fair:      "Some outdated information or analysis",
				Poor:      "Significantly outdated or irrelevant timing",
			},
		},
		{
			Metric:      MetricRiskAssessment,
			Description: "Thorough identification and analysis of risks",
			Weight:      0.10,
			Benchmarks: Benchmarks{
				Excellent: "Comprehensive risk identification and mitigation strategies",
				Good:      "Good risk coverage with minor gaps",
				Fair:      "Some risks identified but incomplete analysis",
				Poor:      "Poor or missing risk assessment",
			},
		},
		{
			Metric:      MetricDataQuality,
			Description: "Quality and reliability of underlying data sources",
			Weight:      0.05,
			Benchmarks: Benchmarks{
				Excellent: "High-quality, verified, authoritative sources",
				Good:      "Generally reliable sources with minor concerns",
				Fair:      "Mixed quality sources, some reliability issues",
				Poor:      "Poor quality or unreliable data sources",
			},
		},
	})
	if err != nil {
		// The default table is fixed at compile time.
		panic(err)
	}
	return set
}

// Criteria returns the criteria in declaration order.
func (s *CriteriaSet) Criteria() []Criterion {
	return s.criteria
}

// Lookup returns the criterion for a metric.
func (s *CriteriaSet) Lookup(metric Metric) (Criterion, bool) {
	c, ok := s.byMetric[metric]
	return c, ok
}

// WeightedScore computes the weighted sum of per-criterion scores.
// Metrics missing from the input contribute zero.
func (s *CriteriaSet) WeightedScore(scores map[string]float64) float64 {
	total := 0.0
	for _, c := range s.criteria {
		total += scores[string(c.Metric)] * c.Weight
	}
	return total
}

// FormatForPrompt renders the criteria table for the evaluator prompt.
func (s *CriteriaSet) FormatForPrompt() string {
	var b strings.Builder
	for _, c := range s.criteria {
		fmt.Fprintf(&b, "%s (Weight: %.0f%%)\n", strings.ToUpper(string(c.Metric)), c.Weight*100)
		fmt.Fprintf(&b, "- Description: %s\n", c.Description)
		fmt.Fprintf(&b, "- Excellent: %s\n", c.Benchmarks.Excellent)
		fmt.Fprintf(&b, "- Good: %s\n", c.Benchmarks.Good)
		fmt.Fprintf(&b, "- Fair: %s\n", c.Benchmarks.Fair)
		fmt.Fprintf(&b, "- Poor: %s\n\n", c.Benchmarks.Poor)
	}
	return b.String()
}
