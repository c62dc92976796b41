// Package knowledge provides the local knowledge base responders draw
// passages from: documents are chunked on ingest and retrieved by keyword
// overlap scoring per tenant.
package knowledge

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"deskbot/internal/domain"
)

// Storer is the storage interface for the knowledge engine.
type Storer interface {
	AddDocument(ctx context.Context, doc Document, chunks []Chunk) error
	ChunksForTenant(ctx context.Context, tenantID string) ([]Chunk, error)
	ListDocuments(ctx context.Context, tenantID string) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Document is one ingested knowledge source.
type Document struct {
	ID         string
	TenantID   string
	Name       string
	Size       int64
	ChunkCount int
	CreatedAt  time.Time
}

// Chunk is one retrievable slice of a document.
type Chunk struct {
	ID         string
	DocumentID string
	TenantID   string
	DocName    string
	Content    string
	ChunkIndex int
	WordCount  int
}

// Engine chunks documents on ingest and serves ranked passages. It
// implements domain.KnowledgeSearcher.
type Engine struct {
	store     Storer
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

type EngineConfig struct {
	Store     Storer
	ChunkSize int // words per chunk (default: 200)
	Overlap   int // overlapping words between chunks (default: 40)
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 40
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		logger:    cfg.Logger,
	}
}

// AddDocument chunks content and stores document metadata plus chunks under
// the tenant.
func (e *Engine) AddDocument(ctx context.Context, tenantID, name, content string) (*Document, error) {
	hash := sha256.Sum256([]byte(tenantID + "\x00" + content))
	docID := fmt.Sprintf("%x", hash[:8])

	chunks := e.chunkText(content, docID, tenantID, name)

	doc := Document{
		ID:         docID,
		TenantID:   tenantID,
		Name:       name,
		Size:       int64(len(content)),
		ChunkCount: len(chunks),
		CreatedAt:  time.Now(),
	}

	if err := e.store.AddDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	e.logger.Info("document added to knowledge base",
		"tenant", tenantID, "name", name, "chunks", len(chunks), "size", len(content))

	return &doc, nil
}

// Search ranks the tenant's chunks by query-token overlap and returns those
// at or above minSimilarity, best first.
func (e *Engine) Search(ctx context.Context, tenantID, query string, limit int, minSimilarity float64) ([]domain.Passage, error) {
	if limit <= 0 {
		limit = 5
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	chunks, err := e.store.ChunksForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant chunks: %w", err)
	}

	type scored struct {
		chunk Chunk
		score float64
	}
	var hits []scored
	for _, chunk := range chunks {
		score := overlapScore(queryTokens, tokenize(chunk.Content))
		if score >= minSimilarity {
			hits = append(hits, scored{chunk, score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	passages := make([]domain.Passage, len(hits))
	for i, h := range hits {
		passages[i] = domain.Passage{
			Content:    h.chunk.Content,
			Citation:   fmt.Sprintf("%s#%d", h.chunk.DocName, h.chunk.ChunkIndex),
			Similarity: h.score,
		}
	}
	return passages, nil
}

func (e *Engine) ListDocuments(ctx context.Context, tenantID string) ([]Document, error) {
	return e.store.ListDocuments(ctx, tenantID)
}

func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	return e.store.DeleteDocument(ctx, id)
}

// overlapScore is the fraction of query tokens present in the chunk.
func overlapScore(queryTokens, chunkTokens []string) float64 {
	set := make(map[string]bool, len(chunkTokens))
	for _, tok := range chunkTokens {
		set[tok] = true
	}
	hits := 0
	for _, tok := range queryTokens {
		if set[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// chunkText splits text into overlapping chunks of approximately chunkSize
// words.
func (e *Engine) chunkText(text, docID, tenantID, docName string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	step := e.chunkSize - e.overlap
	if step <= 0 {
		step = e.chunkSize
	}

	for i := 0; i < len(words); i += step {
		end := i + e.chunkSize
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s_%d", docID, len(chunks)),
			DocumentID: docID,
			TenantID:   tenantID,
			DocName:    docName,
			Content:    strings.Join(words[i:end], " "),
			ChunkIndex: len(chunks),
			WordCount:  end - i,
		})

		if end >= len(words) {
			break
		}
	}

	return chunks
}
