package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"google.golang.org/genai"

	"finbrain/internal/logging"
	"finbrain/internal/types"
)

// EmbeddingEngine turns text into a vector for similarity ranking.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client *genai.Client
	model  string
}

// NewGenAIEngine creates a GenAI embedding engine.
func NewGenAIEngine(apiKey, model string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{client: client, model: model}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}

// scoredRecord pairs a learning with its similarity to the query.
type scoredRecord struct {
	record     types.LearningRecord
	similarity float64
}

// SearchSemantic ranks learnings by cosine similarity to the query. With
// no embedding engine configured it degrades to plain text search.
func (s *Store) SearchSemantic(ctx context.Context, query string, limit int) ([]types.LearningRecord, error) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	if engine == nil {
		logging.StoreDebug("no embedding engine, semantic search degrading to text search")
		return s.Search(query, Filters{}, limit)
	}
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := engine.Embed(ctx, query)
	if err != nil {
		logging.Store("query embedding failed, degrading to text search: %v", err)
		return s.Search(query, Filters{}, limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_type, symbol, content, performance_score, importance, embedding, created_at
		FROM learnings
		WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded learnings: %w", err)
	}
	defer rows.Close()

	var scored []scoredRecord
	for rows.Next() {
		var rec types.LearningRecord
		var contentJSON string
		var embeddingJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.AgentType, &rec.Symbol, &contentJSON,
			&rec.PerformanceScore, &rec.Importance, &embeddingJSON, &rec.CreatedAt); err != nil {
			continue
		}
		if !embeddingJSON.Valid {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON.String), &vec); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(contentJSON), &rec.Content); err != nil {
			continue
		}
		scored = append(scored, scoredRecord{
			record:     rec,
			similarity: cosineSimilarity(queryVec, vec),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	records := make([]types.LearningRecord, len(scored))
	for i, sr := range scored {
		records[i] = sr.record
	}
	logging.StoreDebug("semantic search %q ranked %d learnings", query, len(records))
	return records, nil
}

// cosineSimilarity computes similarity between two vectors. Mismatched or
// zero-magnitude vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
