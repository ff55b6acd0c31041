// Package memory persists run learnings so future research can retrieve
// what worked for a symbol or agent. Records live in a single SQLite
// database; semantic search over them is optional and degrades to plain
// text matching when no embedding engine is configured.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"finbrain/internal/logging"
	"finbrain/internal/types"
)

// Records with importance below this are pruned during decay.
const pruneThreshold = 0.1

// Store manages learning persistence.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	engine EmbeddingEngine
}

// NewStore opens (or creates) the learning database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(".finbrain", "memory.db")
	}

	logging.Store("Initializing memory store at %s", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Memory store ready")
	return s, nil
}

func (s *Store) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS learnings (
		id TEXT PRIMARY KEY,
		agent_type TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		performance_score REAL DEFAULT 0.0,
		importance REAL DEFAULT 0.5,
		access_count INTEGER DEFAULT 0,
		embedding TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_learnings_symbol ON learnings(symbol);
	CREATE INDEX IF NOT EXISTS idx_learnings_agent ON learnings(agent_type);
	CREATE INDEX IF NOT EXISTS idx_learnings_importance ON learnings(importance);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return nil
}

// SetEmbeddingEngine enables semantic search. Safe to leave unset.
func (s *Store) SetEmbeddingEngine(engine EmbeddingEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// SaveLearning persists a record, assigning an ID when missing. When an
// embedding engine is configured the record's content is embedded and
// stored alongside it; embedding failures degrade to a plain record.
func (s *Store) SaveLearning(ctx context.Context, rec types.LearningRecord) (string, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Store.SaveLearning")
	defer timer.Stop()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Importance == 0 {
		rec.Importance = 0.5
	}

	contentJSON, err := json.Marshal(rec.Content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal learning content: %w", err)
	}

	var embeddingJSON sql.NullString
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if engine != nil {
		if vec, err := engine.Embed(ctx, string(contentJSON)); err == nil {
			if b, err := json.Marshal(vec); err == nil {
				embeddingJSON = sql.NullString{String: string(b), Valid: true}
			}
		} else {
			logging.Store("embedding failed for learning %s, storing without: %v", rec.ID, err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learnings (id, agent_type, symbol, content, performance_score, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			performance_score = excluded.performance_score,
			importance = MIN(1.0, learnings.importance + 0.1),
			embedding = excluded.embedding
	`, rec.ID, rec.AgentType, rec.Symbol, string(contentJSON), rec.PerformanceScore, rec.Importance, embeddingJSON, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save learning: %w", err)
	}

	logging.StoreDebug("Learning saved: id=%s agent=%s symbol=%s", rec.ID, rec.AgentType, rec.Symbol)
	return rec.ID, nil
}

// Filters narrows a search to an agent type and/or symbol.
type Filters struct {
	AgentType string
	Symbol    string
}

// Search finds learnings whose content matches the query text, most
// important first. An empty query matches everything.
func (s *Store) Search(query string, filters Filters, limit int) ([]types.LearningRecord, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Store.Search")
	defer timer.Stop()

	if limit <= 0 {
		limit = 10
	}

	where := "WHERE 1=1"
	args := []any{}
	if query != "" {
		where += " AND content LIKE ?"
		args = append(args, "%"+query+"%")
	}
	if filters.AgentType != "" {
		where += " AND agent_type = ?"
		args = append(args, filters.AgentType)
	}
	if filters.Symbol != "" {
		where += " AND symbol = ?"
		args = append(args, filters.Symbol)
	}
	args = append(args, limit)

	rows, err := s.db.Query(`
		SELECT id, agent_type, symbol, content, performance_score, importance, created_at
		FROM learnings `+where+`
		ORDER BY importance DESC, created_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search learnings: %w", err)
	}
	defer rows.Close()

	records := scanRecords(rows)
	logging.StoreDebug("Search %q matched %d learnings", query, len(records))
	return records, nil
}

// Recent returns learnings created within the window, newest first.
func (s *Store) Recent(window time.Duration, limit int) ([]types.LearningRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().Add(-window)

	rows, err := s.db.Query(`
		SELECT id, agent_type, symbol, content, performance_score, importance, created_at
		FROM learnings
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent learnings: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows), nil
}

func scanRecords(rows *sql.Rows) []types.LearningRecord {
	var records []types.LearningRecord
	for rows.Next() {
		var rec types.LearningRecord
		var contentJSON string
		if err := rows.Scan(&rec.ID, &rec.AgentType, &rec.Symbol, &contentJSON,
			&rec.PerformanceScore, &rec.Importance, &rec.CreatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(contentJSON), &rec.Content); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Decay reduces the importance of learnings older than a week and prunes
// those that have faded below the threshold. Learnings reinforced by
// re-saving keep their importance.
func (s *Store) Decay(factor float64) error {
	timer := logging.StartTimer(logging.CategoryStore, "Store.Decay")
	defer timer.Stop()

	result, err := s.db.Exec(`
		UPDATE learnings
		SET importance = importance * ?
		WHERE created_at < datetime('now', '-7 days')
	`, factor)
	if err != nil {
		return fmt.Errorf("failed to decay importance: %w", err)
	}
	decayed, _ := result.RowsAffected()

	pruned, err := s.db.Exec(`DELETE FROM learnings WHERE importance < ?`, pruneThreshold)
	if err != nil {
		return fmt.Errorf("failed to prune faded learnings: %w", err)
	}
	prunedRows, _ := pruned.RowsAffected()

	logging.Store("Decay complete: %d decayed, %d pruned", decayed, prunedRows)
	return nil
}

// Count returns the number of stored learnings.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM learnings`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
