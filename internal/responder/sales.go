package responder

import (
	"context"
	"fmt"
	"strings"

	"deskbot/internal/domain"
)

const salesAnalysisPrompt = `You are a sales analyst. Examine the customer message and respond with JSON only:
{"qualification": "low|medium|high", "intentType": "pricing|demo|trial|purchase|question|other",
 "buyingSignals": ["..."]}`

type salesAnalysis struct {
	Qualification string   `json:"qualification"`
	IntentType    string   `json:"intentType"`
	BuyingSignals []string `json:"buyingSignals"`
}

// leadIntentTypes force the lead-creation flag regardless of qualification.
var leadIntentTypes = map[string]bool{
	"pricing":  true,
	"demo":     true,
	"trial":    true,
	"purchase": true,
}

var salesIntentTokens = []struct {
	intentType string
	tokens     []string
}{
	{"pricing", []string{"price", "pricing", "cost", "quote", "how much"}},
	{"demo", []string{"demo", "demonstration", "walkthrough"}},
	{"trial", []string{"trial", "try it", "free version"}},
	{"purchase", []string{"buy", "purchase", "order", "subscribe", "sign up"}},
}

var highQualificationTokens = []string{"enterprise", "budget", "contract", "procurement", "team of", "company-wide"}

func (r *Responder) respondSales(ctx context.Context, text string, passages []domain.Passage) (*domain.AgentResponse, error) {
	var a salesAnalysis
	aerr := r.analyzeJSON(ctx, salesAnalysisPrompt, text, &a)
	confidence := backendConfidence
	if aerr != nil {
		r.logger.Warn("sales analysis failed, using lexicon fallback", "error", aerr)
		a = fallbackSalesAnalysis(strings.ToLower(text), r.keywords)
		confidence = fallbackConfidence
	}
	a.Qualification = strings.ToLower(a.Qualification)
	a.IntentType = strings.ToLower(a.IntentType)

	summary := fmt.Sprintf("qualification=%s intent=%s signals=%s",
		a.Qualification, a.IntentType, strings.Join(a.BuyingSignals, ","))
	content, derr := r.draft(ctx, text, summary, passages)

	resp := &domain.AgentResponse{
		Content:         content,
		Confidence:      confidence,
		Intent:          domain.CategorySales,
		RequiresHandoff: a.Qualification == "high",
	}

	createLead := a.Qualification == "high" || a.Qualification == "medium" || leadIntentTypes[a.IntentType]
	resp.Meta()["should_create_lead"] = createLead
	resp.Meta()["analysis"] = a
	if aerr != nil {
		resp.Meta()["fallback_used"] = true
	}

	if createLead {
		resp.SuggestedActions = append(resp.SuggestedActions, "create_lead")
	}
	if a.IntentType == "demo" || a.IntentType == "trial" {
		resp.SuggestedActions = append(resp.SuggestedActions, "schedule_demo")
	}
	if resp.RequiresHandoff {
		resp.SuggestedActions = append(resp.SuggestedActions, "notify_account_executive")
	}

	return resp, firstErr(aerr, derr)
}

// fallbackSalesAnalysis scores the message against a fixed lexicon. extra
// keywords from the profile count as buying signals.
func fallbackSalesAnalysis(lower string, extra []string) salesAnalysis {
	a := salesAnalysis{Qualification: "low", IntentType: "other"}

	for _, group := range salesIntentTokens {
		if containsAny(lower, group.tokens) {
			a.IntentType = group.intentType
			a.BuyingSignals = append(a.BuyingSignals, group.intentType)
			break
		}
	}

	if containsAny(lower, highQualificationTokens) {
		a.Qualification = "high"
		a.BuyingSignals = append(a.BuyingSignals, "qualified buyer")
	} else if a.IntentType != "other" {
		a.Qualification = "medium"
	}

	for _, kw := range extra {
		if strings.Contains(lower, strings.ToLower(kw)) {
			a.BuyingSignals = append(a.BuyingSignals, kw)
		}
	}
	return a
}
