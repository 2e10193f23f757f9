package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"prospector/internal/logging"
	"prospector/internal/types"
)

// Entry is a single remembered finding: a piece of research output
// attributed to a vertical, reusable as context for later jobs.
type Entry struct {
	ID        int64                  `json:"id"`
	Vertical  types.Vertical         `json:"vertical"`
	Kind      string                 `json:"kind"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`

	// Similarity is populated on query results when an embedding
	// engine is configured.
	Similarity float64 `json:"similarity,omitempty"`
}

// Entry kinds captured by the pipeline.
const (
	KindFinding   = "finding"
	KindCaseStudy = "case_study"
	KindPainPoint = "pain_point"
	KindTalkTrack = "talk_track"
)

// Store is the SQLite-backed research memory. Writes are append-only;
// queries rank by embedding similarity when an engine is configured and
// fall back to keyword matching otherwise.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	engine EmbeddingEngine
}

// NewStore initializes the memory database at the given path.
func NewStore(path string) (*Store, error) {
	logging.Memory("Initializing memory store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.MemoryDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.MemoryDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vertical TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_entries_vertical ON entries(vertical);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create entries table: %w", err)
	}
	return nil
}

// SetEmbeddingEngine configures the embedding engine. Must be called
// before Write for entries to carry embeddings.
func (s *Store) SetEmbeddingEngine(engine EmbeddingEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// Write stores an entry, computing its embedding when an engine is
// configured. Embedding failures degrade to keyword-only storage
// rather than losing the entry.
func (s *Store) Write(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var embeddingJSON sql.NullString
	if s.engine != nil {
		vec, err := s.engine.Embed(ctx, entry.Content)
		if err != nil {
			logging.MemoryWarn("Embedding failed, storing keyword-only: %v", err)
		} else if data, err := json.Marshal(vec); err == nil {
			embeddingJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	metaJSON, _ := json.Marshal(entry.Metadata)

	_, err := s.db.Exec(
		"INSERT INTO entries (vertical, kind, content, embedding, metadata) VALUES (?, ?, ?, ?, ?)",
		string(entry.Vertical), entry.Kind, entry.Content, embeddingJSON, string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store memory entry: %w", err)
	}
	logging.MemoryDebug("Stored %s entry for vertical=%s (%d chars)", entry.Kind, entry.Vertical, len(entry.Content))
	return nil
}

// Query returns up to limit entries for the vertical, ranked by cosine
// similarity against the query text. An empty vertical matches entries
// from every vertical (callers before classification don't know it
// yet). Without an embedding engine it falls back to keyword matching.
func (s *Store) Query(ctx context.Context, vertical types.Vertical, query string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	if s.engine == nil {
		return s.queryKeyword(vertical, query, limit)
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		logging.MemoryWarn("Query embedding failed, falling back to keyword search: %v", err)
		return s.queryKeyword(vertical, query, limit)
	}

	q := "SELECT id, vertical, kind, content, embedding, metadata, created_at FROM entries WHERE embedding IS NOT NULL"
	var args []interface{}
	if vertical != "" {
		q += " AND vertical = ?"
		args = append(args, string(vertical))
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var e Entry
		var vert, embeddingJSON, metaJSON string
		if err := rows.Scan(&e.ID, &vert, &e.Kind, &e.Content, &embeddingJSON, &metaJSON, &e.CreatedAt); err != nil {
			continue
		}
		e.Vertical = types.Vertical(vert)

		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
			continue
		}
		e.Similarity = CosineSimilarity(queryVec, vec)

		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &e.Metadata)
		}
		results = append(results, e)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// queryKeyword is the fallback keyword-based search.
func (s *Store) queryKeyword(vertical types.Vertical, query string, limit int) ([]Entry, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	conditions := make([]string, 0, len(keywords))
	var args []interface{}
	verticalFilter := ""
	if vertical != "" {
		verticalFilter = "vertical = ? AND "
		args = append(args, string(vertical))
	}
	for _, kw := range keywords {
		conditions = append(conditions, "LOWER(content) LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	args = append(args, limit)

	q := fmt.Sprintf(
		"SELECT id, vertical, kind, content, metadata, created_at FROM entries WHERE %s(%s) ORDER BY created_at DESC LIMIT ?",
		verticalFilter, strings.Join(conditions, " OR "),
	)
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var e Entry
		var vert, metaJSON string
		if err := rows.Scan(&e.ID, &vert, &e.Kind, &e.Content, &metaJSON, &e.CreatedAt); err != nil {
			continue
		}
		e.Vertical = types.Vertical(vert)
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &e.Metadata)
		}
		results = append(results, e)
	}
	return results, nil
}

// Stats reports entry counts and embedding coverage.
func (s *Store) Stats() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var total int64
	s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&total)
	stats["total_entries"] = total

	var embedded int64
	s.db.QueryRow("SELECT COUNT(*) FROM entries WHERE embedding IS NOT NULL").Scan(&embedded)
	stats["with_embeddings"] = embedded
	stats["without_embeddings"] = total - embedded

	if s.engine != nil {
		stats["embedding_engine"] = s.engine.Name()
		stats["embedding_dimensions"] = s.engine.Dimensions()
	} else {
		stats["embedding_engine"] = "none (keyword search)"
	}

	return stats, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
