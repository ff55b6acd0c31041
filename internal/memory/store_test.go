package memory

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finbrain/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLearningAssignsID(t *testing.T) {
	s := newTestStore(t)

	id, err := s.SaveLearning(context.Background(), types.LearningRecord{
		AgentType: "investment_research",
		Symbol:    "AAPL",
		Content:   map[string]any{"final_score": 8.2, "threshold_met": true},
	})
	if err != nil {
		t.Fatalf("SaveLearning: %v", err)
	}
	if id == "" {
		t.Fatal("empty id")
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestSaveLearningReinforcesOnConflict(t *testing.T) {
	s := newTestStore(t)

	rec := types.LearningRecord{
		ID:         "fixed-id",
		AgentType:  "investment_research",
		Symbol:     "MSFT",
		Content:    map[string]any{"note": "v1"},
		Importance: 0.5,
	}
	if _, err := s.SaveLearning(context.Background(), rec); err != nil {
		t.Fatalf("first save: %v", err)
	}

	rec.Content = map[string]any{"note": "v2"}
	if _, err := s.SaveLearning(context.Background(), rec); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.Search("", Filters{Symbol: "MSFT"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].Content["note"] != "v2" {
		t.Errorf("content = %v, want updated", got[0].Content)
	}
	if math.Abs(got[0].Importance-0.6) > 1e-9 {
		t.Errorf("importance = %f, want reinforced 0.6", got[0].Importance)
	}
}

func TestSearchFiltersAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, rec := range []types.LearningRecord{
		{AgentType: "research", Symbol: "AAPL", Importance: 0.9, Content: map[string]any{"note": "strong earnings"}},
		{AgentType: "research", Symbol: "AAPL", Importance: 0.4, Content: map[string]any{"note": "weak earnings"}},
		{AgentType: "routing", Symbol: "MSFT", Importance: 0.7, Content: map[string]any{"note": "cloud earnings growth"}},
	} {
		if _, err := s.SaveLearning(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	// Text match plus symbol filter.
	got, err := s.Search("earnings", Filters{Symbol: "AAPL"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Importance < got[1].Importance {
		t.Error("results must be importance-ordered")
	}

	// Agent filter.
	got, err = s.Search("", Filters{AgentType: "routing"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "MSFT" {
		t.Errorf("agent filter got %v", got)
	}

	// Limit respected.
	got, _ = s.Search("", Filters{}, 2)
	if len(got) != 2 {
		t.Errorf("limit ignored: got %d", len(got))
	}

	// No match.
	got, _ = s.Search("no such text", Filters{}, 10)
	if len(got) != 0 {
		t.Errorf("expected empty, got %d", len(got))
	}
}

func TestRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := types.LearningRecord{
		AgentType: "research",
		Content:   map[string]any{"note": "ancient"},
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	fresh := types.LearningRecord{
		AgentType: "research",
		Content:   map[string]any{"note": "fresh"},
	}
	if _, err := s.SaveLearning(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveLearning(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent(24*time.Hour, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Content["note"] != "fresh" {
		t.Errorf("Recent = %v", got)
	}
}

func TestDecayPrunesFadedLearnings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Backdate a low-importance record beyond the decay window.
	if _, err := s.SaveLearning(ctx, types.LearningRecord{
		ID:         "stale",
		AgentType:  "research",
		Content:    map[string]any{"note": "stale"},
		Importance: 0.15,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE learnings SET created_at = datetime('now', '-30 days') WHERE id = 'stale'`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveLearning(ctx, types.LearningRecord{
		AgentType:  "research",
		Content:    map[string]any{"note": "current"},
		Importance: 0.8,
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Decay(0.5); err != nil {
		t.Fatalf("Decay: %v", err)
	}

	n, _ := s.Count()
	if n != 1 {
		t.Errorf("count after decay = %d, want 1 (stale record pruned)", n)
	}
	got, _ := s.Search("current", Filters{}, 10)
	if len(got) != 1 || got[0].Importance != 0.8 {
		t.Errorf("recent record must keep importance, got %v", got)
	}
}

type fixedEngine struct {
	vectors map[string][]float32
}

func (f *fixedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	for key, vec := range f.vectors {
		if strings.Contains(text, key) {
			return vec, nil
		}
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (f *fixedEngine) Name() string { return "fixed" }

func TestSearchSemanticRanksByCosine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	engine := &fixedEngine{vectors: map[string][]float32{
		"dividends": {1, 0, 0},
		"momentum":  {0, 1, 0},
		"income":    {0.9, 0.1, 0},
	}}
	s.SetEmbeddingEngine(engine)

	if _, err := s.SaveLearning(ctx, types.LearningRecord{
		AgentType: "research",
		Content:   map[string]any{"note": "dividends matter"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveLearning(ctx, types.LearningRecord{
		AgentType: "research",
		Content:   map[string]any{"note": "momentum trade"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.SearchSemantic(ctx, "income stocks", 10)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].Content["note"] != "dividends matter" {
		t.Errorf("nearest record = %v", got[0].Content)
	}
}

func TestSearchSemanticDegradesWithoutEngine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveLearning(ctx, types.LearningRecord{
		AgentType: "research",
		Content:   map[string]any{"note": "value investing"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.SearchSemantic(ctx, "value", 10)
	if err != nil {
		t.Fatalf("SearchSemantic: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("text fallback got %d records", len(got))
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"mismatched length", []float32{1, 2}, []float32{1}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}
