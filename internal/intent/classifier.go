// Package intent classifies messages into the fixed business categories and
// derives routing advice. The completion backend is the primary path; a
// deterministic keyword scorer takes over whenever the backend fails or
// returns something unusable, so classification itself never fails.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deskbot/internal/config"
	"deskbot/internal/domain"
	"deskbot/internal/parse"
)

const (
	fallbackConfidenceCap = 0.8
	noSignalConfidence    = 0.3
)

// Classifier determines category, confidence, language, and context signals
// for one message.
type Classifier struct {
	backend       domain.CompletionClient // nil forces the keyword path
	strategy      string
	keywords      map[domain.Category][]string // pre-lowered
	minConfidence float64
	languages     *languageDetector
	logger        *slog.Logger
}

func NewClassifier(cfg config.RoutingConfig, backend domain.CompletionClient, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	kw := make(map[domain.Category][]string, len(defaultKeywords))
	for cat, words := range defaultKeywords {
		kw[cat] = append([]string{}, words...)
	}
	for name, words := range cfg.Keywords {
		cat := domain.Category(name)
		if !cat.Valid() {
			logger.Warn("ignoring keywords for unknown category", "category", name)
			continue
		}
		lowered := make([]string, len(words))
		for i, w := range words {
			lowered[i] = strings.ToLower(w)
		}
		kw[cat] = lowered
	}

	minConf := cfg.MinConfidence
	if minConf <= 0 {
		minConf = noSignalConfidence
	}

	return &Classifier{
		backend:       backend,
		strategy:      cfg.Strategy,
		keywords:      kw,
		minConfidence: minConf,
		languages:     newLanguageDetector(cfg.PrimaryLanguage, cfg.ExtraLanguages),
		logger:        logger,
	}
}

// Classify resolves text to a member of the fixed category set with a
// confidence in [0,1]. It never returns an out-of-set category and never
// fails: low-signal input lands on the operations catch-all.
func (c *Classifier) Classify(ctx context.Context, text string) domain.IntentResult {
	if c.backend != nil && c.strategy != "keyword" {
		if res, err := c.classifyWithBackend(ctx, text); err == nil {
			return res
		} else {
			c.logger.Warn("backend classification failed, using keyword fallback", "error", err)
		}
	}
	return c.classifyByKeywords(text)
}

const classifyPromptTemplate = `You are an intent classifier for a customer-support system.
Classify the message into exactly one category: %s.
Supported languages: %s.
Respond with JSON only:
{"category": "...", "confidence": 0.0-1.0, "language": "ISO 639-1 code",
 "urgency": "low|normal|high", "sentiment": "negative|neutral|positive",
 "complexity": "simple|moderate|complex", "keywords": ["..."], "entities": ["..."]}`

type classifyReply struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`
	Urgency    string   `json:"urgency"`
	Sentiment  string   `json:"sentiment"`
	Complexity string   `json:"complexity"`
	Keywords   []string `json:"keywords"`
	Entities   []string `json:"entities"`
}

func (c *Classifier) classifyWithBackend(ctx context.Context, text string) (domain.IntentResult, error) {
	var cats []string
	for _, cat := range domain.Categories() {
		cats = append(cats, string(cat))
	}
	prompt := fmt.Sprintf(classifyPromptTemplate,
		strings.Join(cats, ", "), strings.Join(c.languages.codes(), ", "))

	raw, err := c.backend.Complete(ctx, prompt, text)
	if err != nil {
		return domain.IntentResult{}, err
	}

	var reply classifyReply
	if err := parse.JSONBlock(raw, &reply); err != nil {
		return domain.IntentResult{}, err
	}

	category := domain.Category(strings.ToLower(reply.Category))
	if !category.Valid() || category == domain.CategoryUnknown {
		// A category outside the fixed set is an unparseable answer: let the
		// deterministic path decide rather than guessing.
		return domain.IntentResult{}, fmt.Errorf("%w: category %q", domain.ErrUnparseableResponse, reply.Category)
	}

	res := domain.IntentResult{
		Category:   category,
		Confidence: clamp01(reply.Confidence),
		Language:   c.languages.normalize(reply.Language),
		Context: domain.IntentContext{
			Urgency:    normalizeLevel(reply.Urgency, "normal"),
			Sentiment:  normalizeLevel(reply.Sentiment, "neutral"),
			Complexity: normalizeLevel(reply.Complexity, "moderate"),
		},
		Keywords: reply.Keywords,
		Entities: reply.Entities,
	}
	res.Priority = priorityFor(res.Context)
	return res, nil
}

// classifyByKeywords scores each category by keyword hits normalized by the
// category's keyword-list length. Ties break in enumeration order.
func (c *Classifier) classifyByKeywords(text string) domain.IntentResult {
	lower := strings.ToLower(text)

	best := domain.Category("")
	bestScore := 0.0
	var matched []string

	for _, cat := range domain.Categories() {
		words := c.keywords[cat]
		if len(words) == 0 {
			continue
		}
		hits := 0
		var catMatches []string
		for _, kw := range words {
			if strings.Contains(lower, kw) {
				hits++
				catMatches = append(catMatches, kw)
			}
		}
		score := float64(hits) / float64(len(words))
		if score > bestScore {
			bestScore = score
			best = cat
			matched = catMatches
		}
	}

	confidence := bestScore
	if confidence > fallbackConfidenceCap {
		confidence = fallbackConfidenceCap
	}
	if best == "" {
		best = domain.CategoryOperations
		confidence = noSignalConfidence
		matched = nil
	}

	ctxSignals := domain.IntentContext{
		Urgency:    detectUrgency(lower),
		Sentiment:  detectSentiment(lower),
		Complexity: complexityFor(text),
	}

	res := domain.IntentResult{
		Category:   best,
		Confidence: confidence,
		Language:   c.languages.detect(text),
		Context:    ctxSignals,
		Keywords:   matched,
		Entities:   nil,
		Priority:   priorityFor(ctxSignals),
	}

	c.logger.Debug("keyword classification",
		"category", res.Category,
		"confidence", res.Confidence,
		"language", res.Language,
	)
	return res
}

// Advice derives routing from a classification. Low confidence or high
// urgency forces a human; negative sentiment escalates priority.
func (c *Classifier) Advice(res domain.IntentResult) domain.RoutingAdvice {
	advice := domain.RoutingAdvice{
		TargetAgent: res.Category,
		Priority:    domain.PriorityNormal,
	}
	if res.Context.Urgency == "high" {
		advice.Priority = domain.PriorityHigh
		advice.RequiresHuman = true
	}
	if res.Context.Sentiment == "negative" && advice.Priority == domain.PriorityNormal {
		advice.Priority = domain.PriorityHigh
	}
	if res.Confidence < c.minConfidence {
		advice.RequiresHuman = true
	}
	return advice
}

func priorityFor(ctx domain.IntentContext) domain.Priority {
	if ctx.Urgency == "high" {
		return domain.PriorityHigh
	}
	return domain.PriorityNormal
}

var urgentMarkers = []string{"urgent", "asap", "immediately", "right now", "emergency", "critical"}

func detectUrgency(lower string) string {
	for _, m := range urgentMarkers {
		if strings.Contains(lower, m) {
			return "high"
		}
	}
	return "normal"
}

var negativeMarkers = []string{
	"angry", "furious", "terrible", "awful", "worst", "unacceptable",
	"disappointed", "frustrated", "useless", "never works",
}

func detectSentiment(lower string) string {
	for _, m := range negativeMarkers {
		if strings.Contains(lower, m) {
			return "negative"
		}
	}
	return "neutral"
}

// complexityFor grades by word count; >20 words is the threshold the
// operations responder uses for its self-serve decision.
func complexityFor(text string) string {
	n := len(strings.Fields(text))
	switch {
	case n > 20:
		return "complex"
	case n > 8:
		return "moderate"
	default:
		return "simple"
	}
}

func normalizeLevel(v, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
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
