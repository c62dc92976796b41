package domain

import (
	"context"
	"errors"
)

// Sentinel errors callers branch on. Backend failures are always recovered
// locally by the deterministic fallback paths; they never reach the end user.
var (
	// ErrBackendUnavailable marks a completion-backend call that failed or
	// timed out.
	ErrBackendUnavailable = errors.New("completion backend unavailable")

	// ErrUnparseableResponse marks backend output that did not conform to
	// the requested structure. Treated identically to ErrBackendUnavailable.
	ErrUnparseableResponse = errors.New("unparseable backend response")

	// ErrConversationNotFound is returned by ConversationStore.Get for
	// unknown ids.
	ErrConversationNotFound = errors.New("conversation not found")
)

// CompletionClient is the language-understanding backend: an opaque,
// fallible function from prompt to free text. Implementations must enforce a
// bounded timeout on every call.
type CompletionClient interface {
	// Complete sends a system prompt and user text and returns the raw
	// completion text.
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)

	// Name identifies the backend in logs and health output.
	Name() string

	// Healthy probes the backend.
	Healthy(ctx context.Context) error
}

// Passage is one ranked knowledge-retrieval hit.
type Passage struct {
	Content    string
	Citation   string
	Similarity float64
}

// KnowledgeSearcher is the knowledge-retrieval service the responders query
// for supporting passages. Results are ordered by descending similarity.
type KnowledgeSearcher interface {
	Search(ctx context.Context, tenantID, query string, limit int, minSimilarity float64) ([]Passage, error)
}
