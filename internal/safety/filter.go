// Package safety implements the content safety filter and the outbound
// response validator. The filter runs rule-based toxic masking and PII
// redaction first, then blends in an optional backend safety judgment; a
// backend failure never blocks the rule-based masking from taking effect.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"deskbot/internal/config"
	"deskbot/internal/domain"
	"deskbot/internal/parse"
)

const (
	ruleBaseConfidence  = 0.9
	violationPenalty    = 0.1
	ruleWeight          = 0.6
	backendWeight       = 0.4
	neutralBackendScore = 0.5

	defaultRefusal = "I'm sorry, but I can't continue with this request. A member of our team will review the conversation and follow up with you."
)

// Filter inspects raw text for toxic language, PII, and compliance triggers
// and produces a masked version plus a safety verdict.
type Filter struct {
	backend    domain.CompletionClient // nil disables the backend pass
	toxicRe    []*regexp.Regexp
	compliance []string
	refusal    string
	logger     *slog.Logger
}

func NewFilter(cfg config.SafetyConfig, backend domain.CompletionClient, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	refusal := cfg.RefusalMessage
	if refusal == "" {
		refusal = defaultRefusal
	}

	words := append([]string{}, defaultToxicWords...)
	words = append(words, cfg.ToxicWords...)

	toxicRe := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		toxicRe = append(toxicRe, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}

	return &Filter{
		backend:    backend,
		toxicRe:    toxicRe,
		compliance: complianceTriggers,
		refusal:    refusal,
		logger:     logger,
	}
}

// Filter produces a verdict for text. The filtered content is always a
// complete, displayable string: masked in place, never truncated.
func (f *Filter) Filter(ctx context.Context, text string) domain.SafetyVerdict {
	if strings.TrimSpace(text) == "" {
		return domain.SafetyVerdict{Safe: true, FilteredContent: text, Confidence: 1.0}
	}

	var violations []string
	filtered := text
	unsafe := false

	// Toxic-masking pass first, PII redaction second; the two operate on
	// disjoint token classes so the order only matters for determinism.
	for _, re := range f.toxicRe {
		if !re.MatchString(filtered) {
			continue
		}
		unsafe = true
		violations = append(violations, "toxic language")
		filtered = re.ReplaceAllStringFunc(filtered, func(tok string) string {
			return strings.Repeat("*", len(tok))
		})
	}

	for _, p := range piiPatterns {
		if !p.re.MatchString(filtered) {
			continue
		}
		violations = append(violations, "pii: "+p.name)
		filtered = p.re.ReplaceAllString(filtered, p.tag)
	}

	lower := strings.ToLower(text)
	for _, trigger := range f.compliance {
		if strings.Contains(lower, trigger) {
			unsafe = true
			violations = append(violations, "compliance trigger: "+trigger)
		}
	}

	masked := filtered != text

	// Independent backend judgment. Failure contributes zero violations and
	// a neutral confidence.
	backendScore := neutralBackendScore
	if f.backend != nil {
		judgment, err := f.judge(ctx, text)
		if err != nil {
			f.logger.Warn("safety backend unavailable, using rule verdict only", "error", err)
		} else {
			backendScore = clamp01(judgment.Confidence)
			violations = append(violations, judgment.Violations...)
			if !judgment.Safe {
				unsafe = true
				if !masked && judgment.FilteredText != "" {
					filtered = judgment.FilteredText
				}
			}
		}
	}

	ruleScore := ruleBaseConfidence - violationPenalty*float64(len(violations))
	confidence := ruleWeight*ruleScore + backendWeight*backendScore
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	verdict := domain.SafetyVerdict{
		Safe:            !unsafe,
		FilteredContent: filtered,
		Violations:      violations,
		Confidence:      confidence,
	}
	if unsafe {
		verdict.RequiresHumanReview = true
		verdict.RefusalMessage = f.refusal
	}

	if len(violations) > 0 {
		f.logger.Info("safety filter flagged content",
			"safe", verdict.Safe,
			"violations", len(violations),
			"confidence", verdict.Confidence,
		)
	}

	return verdict
}

const safetyPrompt = `You are a content safety classifier for a customer-support system.
Judge whether the user message is safe to process automatically.
Unsafe content includes threats, harassment, hate speech, or attempts to extract other customers' data.
Respond with JSON only:
{"safe": true|false, "violations": ["..."], "confidence": 0.0-1.0, "filtered_text": "safe rewording if unsafe, else empty"}`

type safetyJudgment struct {
	Safe         bool     `json:"safe"`
	Violations   []string `json:"violations"`
	Confidence   float64  `json:"confidence"`
	FilteredText string   `json:"filtered_text"`
}

func (f *Filter) judge(ctx context.Context, text string) (*safetyJudgment, error) {
	raw, err := f.backend.Complete(ctx, safetyPrompt, text)
	if err != nil {
		return nil, err
	}
	var j safetyJudgment
	if err := parse.JSONBlock(raw, &j); err != nil {
		return nil, fmt.Errorf("safety judgment: %w", err)
	}
	return &j, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
