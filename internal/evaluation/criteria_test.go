package evaluation

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDefaultCriteriaWeights(t *testing.T) {
	set := DefaultCriteria()
	criteria := set.Criteria()
	if len(criteria) != 8 {
		t.Fatalf("expected 8 criteria, got %d", len(criteria))
	}

	sum := 0.0
	for _, c := range criteria {
		sum += c.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		t.Errorf("weights sum to %f", sum)
	}

	want := map[Metric]float64{
		MetricAccuracy:       0.20,
		MetricCompleteness:   0.15,
		MetricRelevance:      0.15,
		MetricActionability:  0.15,
		MetricClarity:        0.10,
		MetricTimeliness:     0.10,
		MetricRiskAssessment: 0.10,
		MetricDataQuality:    0.05,
	}
	for metric, weight := range want {
		c, ok := set.Lookup(metric)
		if !ok {
			t.Errorf("missing criterion %s", metric)
			continue
		}
		if c.Weight != weight {
			t.Errorf("%s weight = %f, want %f", metric, c.Weight, weight)
		}
	}
}

func TestNewCriteriaSetValidation(t *testing.T) {
	tests := []struct {
		name     string
		criteria []Criterion
		wantErr  string
	}{
		{
			name:     "empty",
			criteria: nil,
			wantErr:  "empty",
		},
		{
			name: "weights off",
			criteria: []Criterion{
				{Metric: MetricAccuracy, Weight: 0.5},
				{Metric: MetricClarity, Weight: 0.6},
			},
			wantErr: "sum",
		},
		{
			name: "negative weight",
			criteria: []Criterion{
				{Metric: MetricAccuracy, Weight: 1.2},
				{Metric: MetricClarity, Weight: -0.2},
			},
			wantErr: "negative",
		},
		{
			name: "duplicate metric",
			criteria: []Criterion{
				{Metric: MetricAccuracy, Weight: 0.5},
				{Metric: MetricAccuracy, Weight: 0.5},
			},
			wantErr: "duplicate",
		},
		{
			name: "valid",
			criteria: []Criterion{
				{Metric: MetricAccuracy, Weight: 0.5},
				{Metric: MetricClarity, Weight: 0.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCriteriaSet(tt.criteria)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvariant) {
				t.Errorf("error %v is not ErrInvariant", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWeightedScore(t *testing.T) {
	set := DefaultCriteria()
	scores := map[string]float64{
		"accuracy":        8,
		"completeness":    7,
		"relevance":       7,
		"actionability":   6,
		"clarity":         9,
		"timeliness":      8,
		"risk_assessment": 5,
		"data_quality":    7,
	}
	// 8*.2 + 7*.15 + 7*.15 + 6*.15 + 9*.1 + 8*.1 + 5*.1 + 7*.05
	want := 1.6 + 1.05 + 1.05 + 0.9 + 0.9 + 0.8 + 0.5 + 0.35
	got := set.WeightedScore(scores)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("WeightedScore = %f, want %f", got, want)
	}

	// Missing metrics contribute zero.
	partial := set.WeightedScore(map[string]float64{"accuracy": 10})
	if math.Abs(partial-2.0) > 1e-9 {
		t.Errorf("partial WeightedScore = %f, want 2.0", partial)
	}
}

func TestFormatForPrompt(t *testing.T) {
	text := DefaultCriteria().FormatForPrompt()
	for _, fragment := range []string{
		"ACCURACY (Weight: 20%)",
		"DATA_QUALITY (Weight: 5%)",
		"Factual correctness and precision of data and analysis",
		"- Poor: Confusing, poorly structured",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
}
