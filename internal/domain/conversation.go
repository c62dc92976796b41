package domain

import (
	"context"
	"time"
)

// IntentHistoryLimit caps the bounded intent history per conversation;
// oldest entries drop first.
const IntentHistoryLimit = 10

// ConversationState is the per-conversation bookkeeping the orchestrator
// maintains across messages. It is not a source of truth for anything
// correctness-critical: best-effort updates are acceptable.
//
// Invariants: MessageCount never decreases; EscalationLevel only increases,
// and only through explicit handoff events; IntentHistory never exceeds
// IntentHistoryLimit entries.
type ConversationState struct {
	ID                string
	TenantID          string
	CustomerID        string
	Channel           ChannelType
	CreatedAt         time.Time
	LastActivity      time.Time
	MessageCount      int
	CurrentAgent      string
	IntentHistory     []Category
	EscalationLevel   int
	PreviousAgent     string
	LastHandoffReason string
}

// RecordIntent appends an intent to the bounded history.
func (c *ConversationState) RecordIntent(cat Category) {
	c.IntentHistory = append(c.IntentHistory, cat)
	if len(c.IntentHistory) > IntentHistoryLimit {
		c.IntentHistory = c.IntentHistory[len(c.IntentHistory)-IntentHistoryLimit:]
	}
}

// ConversationStore abstracts conversation-state persistence so the
// orchestrator can run against an in-process map or an external database
// without touching pipeline logic.
//
// Get returns a copy; callers mutate and write back through Upsert. Per-key
// write exclusivity is the orchestrator's responsibility.
type ConversationStore interface {
	// Get returns the state for id, or ErrConversationNotFound.
	Get(ctx context.Context, id string) (*ConversationState, error)

	// Upsert creates or replaces the state keyed by state.ID.
	Upsert(ctx context.Context, state *ConversationState) error

	// Delete removes one conversation. Returns false when id was absent.
	Delete(ctx context.Context, id string) (bool, error)

	// ResetTenant removes every conversation belonging to the tenant and
	// returns how many were removed.
	ResetTenant(ctx context.Context, tenantID string) (int, error)

	// SweepExpired removes conversations whose last activity is before the
	// cutoff and returns how many were removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}
