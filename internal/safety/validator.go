package safety

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"deskbot/internal/domain"
)

const defaultMinReplyLength = 10

// bracketed or braced template tokens a model left unresolved. Redaction
// tags ([EMAIL_REDACTED] etc.) are legitimate output and are excluded.
var (
	bracketTokenRe = regexp.MustCompile(`\[[^\[\]]+\]`)
	braceTokenRe   = regexp.MustCompile(`\{\{?[^{}]*\}?\}`)
	markerRe       = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)
)

// Validator re-checks drafted replies before delivery: a reply can itself
// leak PII or echo toxic language from the input, and degenerate replies
// (too short, unresolved placeholders) must not reach the customer.
type Validator struct {
	filter *Filter
	minLen int
	logger *slog.Logger
}

func NewValidator(filter *Filter, minReplyLength int, logger *slog.Logger) *Validator {
	if minReplyLength <= 0 {
		minReplyLength = defaultMinReplyLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{filter: filter, minLen: minReplyLength, logger: logger}
}

// Validate applies the safety filter to resp.Content and flags degenerate
// replies. On a safety failure the masked content replaces the original;
// that is the single permitted mutation of a responder's output. RequiresHandoff is
// forced true when the safety re-check failed or any additional violation
// was found.
func (v *Validator) Validate(ctx context.Context, resp *domain.AgentResponse) *domain.AgentResponse {
	verdict := v.filter.Filter(ctx, resp.Content)

	var extra []string
	if len(strings.TrimSpace(resp.Content)) < v.minLen {
		extra = append(extra, "reply too short or generic")
	}
	if hasPlaceholder(resp.Content) {
		extra = append(extra, "reply contains placeholder text")
	}

	// Masked PII in an otherwise-safe reply is also replaced: the raw value
	// must never leave the pipeline.
	if verdict.FilteredContent != resp.Content {
		resp.Content = verdict.FilteredContent
	}

	if !verdict.Safe || len(extra) > 0 {
		resp.RequiresHandoff = true
		meta := resp.Meta()
		meta["validation_violations"] = append(append([]string{}, verdict.Violations...), extra...)
		v.logger.Warn("response validation flagged reply",
			"safe", verdict.Safe,
			"extra_violations", len(extra),
		)
	}

	return resp
}

func hasPlaceholder(s string) bool {
	for _, m := range bracketTokenRe.FindAllString(s, -1) {
		if !strings.HasSuffix(m, "_REDACTED]") {
			return true
		}
	}
	return braceTokenRe.MatchString(s) || markerRe.MatchString(s)
}
