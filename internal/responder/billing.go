package responder

import (
	"context"
	"fmt"
	"strings"

	"deskbot/internal/domain"
)

const billingAnalysisPrompt = `You are a billing analyst. Examine the customer message and respond with JSON only:
{"category": "refund|payment_issue|invoice|subscription|general", "urgency": "low|normal|high",
 "sensitiveData": true|false, "accountAccessRequired": true|false}`

type billingAnalysis struct {
	Category              string `json:"category"`
	Urgency               string `json:"urgency"`
	SensitiveData         bool   `json:"sensitiveData"`
	AccountAccessRequired bool   `json:"accountAccessRequired"`
}

// handoffCategories always require a human regardless of the other flags.
var handoffCategories = map[string]bool{
	"refund":        true,
	"payment_issue": true,
}

// sensitiveTokens is a deliberately blunt heuristic; "card" and "$" over-fire
// on unrelated messages, but missing real payment data costs more than a
// false positive here.
var sensitiveTokens = []string{
	"payment", "amount", "refund", "cancel",
	"card", "visa", "mastercard", "amex", "$",
}

var billingCategoryTokens = []struct {
	category string
	tokens   []string
}{
	{"refund", []string{"refund", "money back", "chargeback"}},
	{"payment_issue", []string{"payment failed", "declined", "charged twice", "double charge", "overcharged", "wrong charge"}},
	{"invoice", []string{"invoice", "receipt", "bill"}},
	{"subscription", []string{"subscription", "cancel", "downgrade", "renewal"}},
}

var accountAccessTokens = []string{"my account", "account locked", "access my", "update my", "change my"}

func (r *Responder) respondBilling(ctx context.Context, text string, passages []domain.Passage) (*domain.AgentResponse, error) {
	lower := strings.ToLower(text)

	var a billingAnalysis
	aerr := r.analyzeJSON(ctx, billingAnalysisPrompt, text, &a)
	confidence := backendConfidence
	if aerr != nil {
		r.logger.Warn("billing analysis failed, using lexicon fallback", "error", aerr)
		a = fallbackBillingAnalysis(lower)
		confidence = fallbackConfidence
	}
	a.Category = strings.ToLower(a.Category)

	// The sensitive-data check runs on the raw text on every path; the
	// backend may additionally flag it, never un-flag it.
	if containsAny(lower, sensitiveTokens) {
		a.SensitiveData = true
	}

	summary := fmt.Sprintf("category=%s urgency=%s sensitive=%t accountAccess=%t",
		a.Category, a.Urgency, a.SensitiveData, a.AccountAccessRequired)
	content, derr := r.draft(ctx, text, summary, passages)

	resp := &domain.AgentResponse{
		Content:         content,
		Confidence:      confidence,
		Intent:          domain.CategoryBilling,
		RequiresHandoff: a.SensitiveData || handoffCategories[a.Category] || a.AccountAccessRequired,
	}

	resp.Meta()["analysis"] = a
	if aerr != nil {
		resp.Meta()["fallback_used"] = true
	}

	resp.SuggestedActions = append(resp.SuggestedActions, "review_account")
	if a.Category == "refund" {
		resp.SuggestedActions = append(resp.SuggestedActions, "open_refund_case")
	}
	if resp.RequiresHandoff {
		resp.SuggestedActions = append(resp.SuggestedActions, "route_to_billing_team")
	}

	return resp, firstErr(aerr, derr)
}

func fallbackBillingAnalysis(lower string) billingAnalysis {
	a := billingAnalysis{Category: "general", Urgency: "normal"}

	for _, group := range billingCategoryTokens {
		if containsAny(lower, group.tokens) {
			a.Category = group.category
			break
		}
	}
	if containsAny(lower, accountAccessTokens) {
		a.AccountAccessRequired = true
	}
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "immediately") {
		a.Urgency = "high"
	}
	return a
}
