package refine

import (
	"context"
	"strings"
	"testing"

	"finbrain/internal/types"
)

type captureClient struct {
	response string
	gotSys   string
	gotUser  string
}

func (c *captureClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.gotUser = prompt
	return c.response, nil
}

func (c *captureClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	c.gotSys = system
	c.gotUser = user
	return c.response, nil
}

func TestOptimizeCarriesEvaluationFeedback(t *testing.T) {
	client := &captureClient{response: "A sharper, risk-aware analysis."}
	opt := NewOptimizer(client)

	eval := types.EvaluationResult{
		OverallScore:         5.5,
		Weaknesses:           []string{"no risk section"},
		PriorityImprovements: []string{"quantify downside"},
	}
	artifact := types.Artifact{"symbol": "TSLA", "analysis": "Tesla is volatile."}

	result, err := opt.Optimize(context.Background(), artifact, eval, nil)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	if result.OptimizedText != client.response {
		t.Errorf("OptimizedText = %q", result.OptimizedText)
	}
	if result.BasedOnScore != 5.5 {
		t.Errorf("BasedOnScore = %f", result.BasedOnScore)
	}
	if len(result.AddressedWeaknesses) != 1 || result.AddressedWeaknesses[0] != "no risk section" {
		t.Errorf("AddressedWeaknesses = %v", result.AddressedWeaknesses)
	}
	if len(result.ImplementedImprovements) != 1 {
		t.Errorf("ImplementedImprovements = %v", result.ImplementedImprovements)
	}
	if result.OptimizedAt.IsZero() {
		t.Error("OptimizedAt not set")
	}

	if !strings.Contains(client.gotUser, "TSLA") {
		t.Error("prompt missing original artifact")
	}
	if !strings.Contains(client.gotUser, "no risk section") {
		t.Error("prompt missing evaluation feedback")
	}
}

func TestMergeArtifact(t *testing.T) {
	tests := []struct {
		name    string
		current types.Artifact
		text    string
		check   func(t *testing.T, got types.Artifact)
	}{
		{
			name:    "structured json replaces wholesale",
			current: types.Artifact{"symbol": "AAPL", "analysis": "old", "extra": "kept?"},
			text:    `{"symbol": "AAPL", "analysis": "new", "recommendation": "BUY"}`,
			check: func(t *testing.T, got types.Artifact) {
				if got["analysis"] != "new" || got["recommendation"] != "BUY" {
					t.Errorf("got %v", got)
				}
				if _, leftover := got["extra"]; leftover {
					t.Error("wholesale replace must drop old fields")
				}
			},
		},
		{
			name:    "narrative text updates analysis field",
			current: types.Artifact{"symbol": "AAPL", "analysis": "old"},
			text:    "A much improved narrative.",
			check: func(t *testing.T, got types.Artifact) {
				if got["analysis"] != "A much improved narrative." {
					t.Errorf("analysis = %v", got["analysis"])
				}
				if got["symbol"] != "AAPL" {
					t.Error("other fields must survive a narrative update")
				}
			},
		},
		{
			name:    "text with no narrative field gets wrapped",
			current: types.Artifact{"symbol": "AAPL"},
			text:    "standalone text",
			check: func(t *testing.T, got types.Artifact) {
				if got["analysis"] != "standalone text" {
					t.Errorf("got %v", got)
				}
				if _, kept := got["symbol"]; kept {
					t.Error("wrap produces a fresh artifact")
				}
			},
		},
		{
			name:    "malformed json falls back to narrative",
			current: types.Artifact{"analysis": "old"},
			text:    `{"broken": json...`,
			check: func(t *testing.T, got types.Artifact) {
				if got["analysis"] != `{"broken": json...` {
					t.Errorf("got %v", got)
				}
			},
		},
		{
			name:    "nil current wraps text",
			current: nil,
			text:    "from nothing",
			check: func(t *testing.T, got types.Artifact) {
				if got["analysis"] != "from nothing" {
					t.Errorf("got %v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mergeArtifact(tt.current, tt.text))
		})
	}
}
