package responder

import (
	"context"
	"fmt"
	"strings"

	"deskbot/internal/domain"
)

const supportAnalysisPrompt = `You are a technical-support analyst. Examine the customer message and respond with JSON only:
{"severity": "low|medium|high|critical", "category": "login|installation|performance|data|general",
 "troubleshootingSteps": ["..."]}`

type supportAnalysis struct {
	Severity             string   `json:"severity"`
	Category             string   `json:"category"`
	TroubleshootingSteps []string `json:"troubleshootingSteps"`
}

var severityTokens = []struct {
	severity string
	tokens   []string
}{
	{"critical", []string{"down", "outage", "data loss", "lost all", "security breach", "hacked"}},
	{"high", []string{"crash", "cannot", "can't", "broken", "doesn't work", "not working", "urgent"}},
	{"medium", []string{"error", "bug", "issue", "problem", "slow", "fails"}},
}

var supportCategoryTokens = []struct {
	category string
	tokens   []string
}{
	{"login", []string{"login", "log in", "password", "sign in", "locked out", "2fa"}},
	{"installation", []string{"install", "setup", "update", "upgrade", "download"}},
	{"performance", []string{"slow", "lag", "timeout", "freez", "hangs"}},
	{"data", []string{"data", "export", "import", "sync", "backup"}},
}

func (r *Responder) respondSupport(ctx context.Context, text string, passages []domain.Passage) (*domain.AgentResponse, error) {
	var a supportAnalysis
	aerr := r.analyzeJSON(ctx, supportAnalysisPrompt, text, &a)
	confidence := backendConfidence
	if aerr != nil {
		r.logger.Warn("support analysis failed, using lexicon fallback", "error", aerr)
		a = fallbackSupportAnalysis(strings.ToLower(text))
		confidence = fallbackConfidence
	}
	a.Severity = strings.ToLower(a.Severity)
	a.Category = strings.ToLower(a.Category)

	summary := fmt.Sprintf("severity=%s category=%s", a.Severity, a.Category)
	content, derr := r.draft(ctx, text, summary, passages)

	resp := &domain.AgentResponse{
		Content:         content,
		Confidence:      confidence,
		Intent:          domain.CategorySupport,
		RequiresHandoff: a.Severity == "critical" || a.Severity == "high",
	}

	resp.Meta()["analysis"] = a
	resp.Meta()["estimated_resolution"] = resolutionFor(a.Severity)
	if aerr != nil {
		resp.Meta()["fallback_used"] = true
	}

	resp.SuggestedActions = append(resp.SuggestedActions, "open_ticket")
	if resp.RequiresHandoff {
		resp.SuggestedActions = append(resp.SuggestedActions, "page_on_call")
	}

	return resp, firstErr(aerr, derr)
}

// resolutionFor is "immediate" only for critical severity.
func resolutionFor(severity string) string {
	switch severity {
	case "critical":
		return "immediate"
	case "high":
		return "within 4 hours"
	case "medium":
		return "within 24 hours"
	default:
		return "1-2 business days"
	}
}

func fallbackSupportAnalysis(lower string) supportAnalysis {
	a := supportAnalysis{Severity: "low", Category: "general"}

	for _, group := range severityTokens {
		if containsAny(lower, group.tokens) {
			a.Severity = group.severity
			break
		}
	}
	for _, group := range supportCategoryTokens {
		if containsAny(lower, group.tokens) {
			a.Category = group.category
			break
		}
	}

	switch a.Category {
	case "login":
		a.TroubleshootingSteps = []string{"reset your password", "clear browser cookies", "try an incognito window"}
	case "installation":
		a.TroubleshootingSteps = []string{"verify the download checksum", "run the installer as administrator", "check available disk space"}
	case "performance":
		a.TroubleshootingSteps = []string{"restart the application", "check your network connection", "close unused sessions"}
	default:
		a.TroubleshootingSteps = []string{"restart the application", "retry the failing action"}
	}
	return a
}
