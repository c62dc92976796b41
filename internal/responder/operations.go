package responder

import (
	"context"
	"fmt"
	"strings"

	"deskbot/internal/domain"
)

const operationsAnalysisPrompt = `You are a general-operations analyst for a customer-support desk. Examine the customer message and respond with JSON only:
{"inquiryType": "hours|location|delivery|policy|general", "canSelfServe": true|false}`

type operationsAnalysis struct {
	InquiryType  string `json:"inquiryType"`
	CanSelfServe bool   `json:"canSelfServe"`
}

const complexWordCount = 20

var selfServeTokens = []struct {
	inquiryType string
	tokens      []string
}{
	{"hours", []string{"hours", "open", "close", "closing", "holiday"}},
	{"location", []string{"address", "location", "where are you", "directions"}},
	{"delivery", []string{"delivery", "shipping", "track", "shipment"}},
	{"policy", []string{"policy", "return", "warranty", "terms"}},
}

func (r *Responder) respondOperations(ctx context.Context, text string, passages []domain.Passage) (*domain.AgentResponse, error) {
	var a operationsAnalysis
	aerr := r.analyzeJSON(ctx, operationsAnalysisPrompt, text, &a)
	confidence := backendConfidence
	if aerr != nil {
		r.logger.Warn("operations analysis failed, using lexicon fallback", "error", aerr)
		a = fallbackOperationsAnalysis(strings.ToLower(text))
		confidence = fallbackConfidence
	}
	a.InquiryType = strings.ToLower(a.InquiryType)

	summary := fmt.Sprintf("inquiryType=%s canSelfServe=%t", a.InquiryType, a.CanSelfServe)
	content, derr := r.draft(ctx, text, summary, passages)

	complex := len(strings.Fields(text)) > complexWordCount
	resp := &domain.AgentResponse{
		Content:         content,
		Confidence:      confidence,
		Intent:          domain.CategoryOperations,
		RequiresHandoff: !a.CanSelfServe && complex,
	}

	resp.Meta()["analysis"] = a
	if aerr != nil {
		resp.Meta()["fallback_used"] = true
	}

	if a.CanSelfServe {
		resp.SuggestedActions = append(resp.SuggestedActions, "share_help_article")
	}
	if resp.RequiresHandoff {
		resp.SuggestedActions = append(resp.SuggestedActions, "route_to_operations_team")
	}

	return resp, firstErr(aerr, derr)
}

func fallbackOperationsAnalysis(lower string) operationsAnalysis {
	a := operationsAnalysis{InquiryType: "general"}
	for _, group := range selfServeTokens {
		if containsAny(lower, group.tokens) {
			a.InquiryType = group.inquiryType
			a.CanSelfServe = true
			break
		}
	}
	return a
}
