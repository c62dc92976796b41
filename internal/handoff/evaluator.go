// Package handoff decides when a conversation must leave automated handling
// for a human. The rules form a strict priority order: earlier rules are
// never bypassed by later ones, even when several would fire independently.
package handoff

import (
	"fmt"
	"strings"

	"deskbot/internal/config"
	"deskbot/internal/domain"
)

// Reason prefixes operators and tests key on.
const (
	ReasonHumanRequest     = "explicit human request"
	ReasonComplexIssue     = "complex or urgent issue"
	ReasonLongConversation = "long conversation"
	ReasonRepeatedUnknown  = "repeated unresolved intent"
	ReasonEscalationLimit  = "escalation_limit_reached"
	ReasonLowConfidence    = "low_confidence"
)

const repeatedUnknownWindow = 3

var defaultHumanKeywords = []string{"human", "agent", "representative", "manager", "supervisor"}

var defaultComplexKeywords = []string{"complaint", "refund", "cancel", "legal", "urgent", "emergency"}

// Evaluator is a pure decision function over the classifier output and the
// running conversation state.
type Evaluator struct {
	humanKeywords   []string
	complexKeywords []string
	escalationCap   int
	longLimit       int
	minConfidence   float64
}

func NewEvaluator(cfg config.HandoffConfig, minConfidence float64) *Evaluator {
	human := cfg.HumanKeywords
	if len(human) == 0 {
		human = defaultHumanKeywords
	}
	complexKW := cfg.ComplexKeywords
	if len(complexKW) == 0 {
		complexKW = defaultComplexKeywords
	}
	cap := cfg.EscalationCap
	if cap <= 0 {
		cap = 3
	}
	longLimit := cfg.LongConversationLimit
	if longLimit <= 0 {
		longLimit = 10
	}
	if minConfidence <= 0 {
		minConfidence = 0.3
	}
	return &Evaluator{
		humanKeywords:   human,
		complexKeywords: complexKW,
		escalationCap:   cap,
		longLimit:       longLimit,
		minConfidence:   minConfidence,
	}
}

// Evaluate applies the rules in strict priority order; the first match wins.
// text is the filtered message content.
func (e *Evaluator) Evaluate(text string, intent domain.IntentResult, state domain.ConversationState) domain.HandoffDecision {
	lower := strings.ToLower(text)

	// Rule 1: explicit request for a human.
	if kw := containsToken(lower, e.humanKeywords); kw != "" {
		return domain.HandoffDecision{
			ShouldHandoff: true,
			Reason:        fmt.Sprintf("%s (%q)", ReasonHumanRequest, kw),
			Confidence:    0.9,
			RequiresHuman: true,
			Urgency:       domain.UrgencyNormal,
		}
	}

	// Rule 2: complaint/urgent-issue vocabulary.
	if kw := containsToken(lower, e.complexKeywords); kw != "" {
		return domain.HandoffDecision{
			ShouldHandoff: true,
			Reason:        fmt.Sprintf("%s (%q)", ReasonComplexIssue, kw),
			Confidence:    0.8,
			RequiresHuman: true,
			Urgency:       domain.UrgencyHigh,
		}
	}

	// Rule 3: conversation has dragged on too long.
	if state.MessageCount > e.longLimit {
		return domain.HandoffDecision{
			ShouldHandoff: true,
			Reason:        ReasonLongConversation,
			Confidence:    0.6,
			RequiresHuman: true,
			Urgency:       domain.UrgencyNormal,
		}
	}

	// Rule 4: the last N intents all failed to resolve. Deliberately
	// sentinel-only: three identical low-confidence sales intents, say, do
	// not trigger this rule.
	if repeatedUnknown(state.IntentHistory) {
		return domain.HandoffDecision{
			ShouldHandoff: true,
			Reason:        ReasonRepeatedUnknown,
			Confidence:    0.7,
			RequiresHuman: true,
			Urgency:       domain.UrgencyNormal,
		}
	}

	// Rule 5: escalation cap reached.
	if state.EscalationLevel >= e.escalationCap {
		return domain.HandoffDecision{
			ShouldHandoff: true,
			Reason:        ReasonEscalationLimit,
			Confidence:    1.0,
			RequiresHuman: true,
			Urgency:       domain.UrgencyHigh,
		}
	}

	// Rule 6: classifier too uncertain to trust.
	if intent.Confidence < e.minConfidence {
		return domain.HandoffDecision{
			ShouldHandoff: true,
			Reason:        ReasonLowConfidence,
			Confidence:    intent.Confidence,
			RequiresHuman: true,
			Urgency:       domain.UrgencyHigh,
		}
	}

	// Rule 7: no handoff; route to the classified category.
	return domain.HandoffDecision{
		ShouldHandoff: false,
		TargetAgent:   intent.Category,
		Reason:        "routed by intent",
		Confidence:    intent.Confidence,
		Urgency:       domain.UrgencyNormal,
	}
}

// containsToken reports the first keyword present in lower on a word
// boundary, so "agent" does not fire on "urgently".
func containsToken(lower string, keywords []string) string {
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(lower, kw) {
				return kw
			}
			continue
		}
		if set[kw] {
			return kw
		}
	}
	return ""
}

func repeatedUnknown(history []domain.Category) bool {
	if len(history) < repeatedUnknownWindow {
		return false
	}
	for _, cat := range history[len(history)-repeatedUnknownWindow:] {
		if cat != domain.CategoryUnknown {
			return false
		}
	}
	return true
}
