// Package responder drafts category-specific replies. Each responder runs the
// same three-step pipeline: retrieve supporting knowledge, analyze the message
// into a domain-specific structure, then draft the reply text. Both backend
// calls fall back to deterministic local logic, so a responder never fails to
// produce a usable response; the returned error only reports that a backend
// call failed, for the caller's resilience bookkeeping.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deskbot/internal/config"
	"deskbot/internal/domain"
	"deskbot/internal/parse"
)

// Kind names one specialized responder.
type Kind string

const (
	KindSales      Kind = "sales"
	KindSupport    Kind = "support"
	KindBilling    Kind = "billing"
	KindOperations Kind = "operations"
)

// Kinds returns every responder kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSales, KindSupport, KindBilling, KindOperations}
}

// KindFor maps an intent category onto a responder kind.
func KindFor(cat domain.Category) (Kind, bool) {
	switch cat {
	case domain.CategorySales:
		return KindSales, true
	case domain.CategorySupport:
		return KindSupport, true
	case domain.CategoryBilling:
		return KindBilling, true
	case domain.CategoryOperations:
		return KindOperations, true
	default:
		return "", false
	}
}

const (
	backendConfidence  = 0.85
	fallbackConfidence = 0.6
	degradedConfidence = 0.5

	defaultMaxPassages = 5
)

// similarity floors per kind; support and billing demand closer matches.
var defaultThresholds = map[Kind]float64{
	KindSales:      0.6,
	KindSupport:    0.7,
	KindBilling:    0.7,
	KindOperations: 0.6,
}

var defaultCannedReplies = map[Kind]string{
	KindSales:      "Thanks for your interest! A member of our sales team will follow up with details shortly.",
	KindSupport:    "Thanks for reporting this. Our support team is looking into the issue and will get back to you soon.",
	KindBilling:    "Thanks for reaching out about billing. We will review your account and respond shortly.",
	KindOperations: "Thanks for your question. We will get back to you with the information shortly.",
}

// Responder drafts replies for one business category.
type Responder struct {
	kind      Kind
	backend   domain.CompletionClient
	knowledge domain.KnowledgeSearcher // nil disables retrieval

	threshold   float64
	maxPassages int
	cannedReply string
	keywords    []string // extends the built-in fallback lexicon

	logger *slog.Logger
}

func New(kind Kind, backend domain.CompletionClient, knowledge domain.KnowledgeSearcher, profile config.ResponderProfile, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}

	threshold := profile.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultThresholds[kind]
	}
	maxPassages := profile.MaxPassages
	if maxPassages <= 0 {
		maxPassages = defaultMaxPassages
	}
	canned := profile.CannedReply
	if canned == "" {
		canned = defaultCannedReplies[kind]
	}

	return &Responder{
		kind:        kind,
		backend:     backend,
		knowledge:   knowledge,
		threshold:   threshold,
		maxPassages: maxPassages,
		cannedReply: canned,
		keywords:    profile.Keywords,
		logger:      logger.With("responder", string(kind)),
	}
}

func (r *Responder) Kind() Kind { return r.kind }

// Respond produces a reply for one message. The response is always usable;
// a non-nil error reports that a backend call failed along the way so the
// caller can feed its circuit breaker.
func (r *Responder) Respond(ctx context.Context, text string, intent domain.IntentResult, msg domain.InboundMessage) (resp *domain.AgentResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("responder panicked", "panic", rec)
			resp = r.degraded()
			err = fmt.Errorf("responder %s panicked: %v", r.kind, rec)
		}
	}()

	passages := r.retrieve(ctx, msg.TenantID, text)

	switch r.kind {
	case KindSales:
		return r.respondSales(ctx, text, passages)
	case KindSupport:
		return r.respondSupport(ctx, text, passages)
	case KindBilling:
		return r.respondBilling(ctx, text, passages)
	default:
		return r.respondOperations(ctx, text, passages)
	}
}

// retrieve fetches supporting passages. Retrieval failures only cost us
// context for the draft, so they are logged and swallowed rather than
// counted against the responder.
func (r *Responder) retrieve(ctx context.Context, tenantID, query string) []domain.Passage {
	if r.knowledge == nil {
		return nil
	}
	passages, err := r.knowledge.Search(ctx, tenantID, query, r.maxPassages, r.threshold)
	if err != nil {
		r.logger.Warn("knowledge retrieval failed", "error", err)
		return nil
	}
	return passages
}

// analyzeJSON runs the structured-analysis backend call and decodes the JSON
// block from its reply into out.
func (r *Responder) analyzeJSON(ctx context.Context, prompt, text string, out any) error {
	if r.backend == nil {
		return domain.ErrBackendUnavailable
	}
	raw, err := r.backend.Complete(ctx, prompt, text)
	if err != nil {
		return err
	}
	return parse.JSONBlock(raw, out)
}

// draft asks the backend for reply text grounded in the analysis summary and
// retrieved passages, falling back to the canned reply.
func (r *Responder) draft(ctx context.Context, text, analysisSummary string, passages []domain.Passage) (string, error) {
	if r.backend == nil {
		return r.cannedReply, domain.ErrBackendUnavailable
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s specialist for a customer-support desk. ", r.kind)
	sb.WriteString("Write a short, helpful reply to the customer message. Plain text only, no markdown.\n")
	fmt.Fprintf(&sb, "Analysis of the message: %s\n", analysisSummary)
	if len(passages) > 0 {
		sb.WriteString("Relevant knowledge, cite the source when you use it:\n")
		for _, p := range passages {
			fmt.Fprintf(&sb, "- %s (source: %s)\n", p.Content, p.Citation)
		}
	}

	reply, err := r.backend.Complete(ctx, sb.String(), text)
	if err != nil {
		r.logger.Warn("draft call failed, using canned reply", "error", err)
		return r.cannedReply, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return r.cannedReply, fmt.Errorf("%w: empty draft", domain.ErrUnparseableResponse)
	}
	return reply, nil
}

// degraded is the generic non-crashing response of last resort.
func (r *Responder) degraded() *domain.AgentResponse {
	resp := &domain.AgentResponse{
		Content:         r.cannedReply,
		Confidence:      degradedConfidence,
		Intent:          domain.Category(r.kind),
		RequiresHandoff: true,
	}
	resp.Meta()["fallback_used"] = true
	return resp
}

// firstErr keeps the earliest backend failure for breaker accounting.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func containsAny(lower string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
