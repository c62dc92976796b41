package intent

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"deskbot/internal/config"
	"deskbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubBackend struct {
	reply string
	err   error
	calls int
}

func (s *stubBackend) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.reply, s.err
}
func (s *stubBackend) Name() string                      { return "stub" }
func (s *stubBackend) Healthy(ctx context.Context) error { return nil }

func keywordClassifier(t *testing.T) *Classifier {
	t.Helper()
	return NewClassifier(config.RoutingConfig{
		Strategy:        "keyword",
		PrimaryLanguage: "en",
		ExtraLanguages:  []string{"es", "de"},
		MinConfidence:   0.3,
	}, nil, testLogger())
}

// --- keyword fallback ---

func TestClassify_PricingGoesToSales(t *testing.T) {
	c := keywordClassifier(t)
	res := c.Classify(context.Background(), "What's your pricing for the enterprise plan?")
	if res.Category != domain.CategorySales {
		t.Fatalf("expected sales, got %s", res.Category)
	}
	if res.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %v", res.Confidence)
	}
}

func TestClassify_NoSignalDefaultsToOperations(t *testing.T) {
	c := keywordClassifier(t)
	res := c.Classify(context.Background(), "hmm okay then")
	if res.Category != domain.CategoryOperations {
		t.Fatalf("expected operations catch-all, got %s", res.Category)
	}
	if res.Confidence != 0.3 {
		t.Fatalf("expected low-signal confidence 0.3, got %v", res.Confidence)
	}
}

func TestClassify_CategoryAlwaysInFixedSet(t *testing.T) {
	c := keywordClassifier(t)
	inputs := []string{
		"", "?!?", "my invoice is wrong and the app crashes",
		"necesito ayuda con el precio", "URGENT: refund my card now",
	}
	for _, in := range inputs {
		res := c.Classify(context.Background(), in)
		if !res.Category.Valid() || res.Category == domain.CategoryUnknown {
			t.Fatalf("category %q outside fixed set for input %q", res.Category, in)
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Fatalf("confidence %v out of [0,1] for input %q", res.Confidence, in)
		}
	}
}

func TestClassify_FallbackConfidenceCapped(t *testing.T) {
	c := keywordClassifier(t)
	// Stack nearly every billing keyword into one message.
	res := c.Classify(context.Background(),
		"invoice bill billing charge charged refund payment card receipt overcharged cancel")
	if res.Confidence > 0.8 {
		t.Fatalf("fallback confidence must cap at 0.8, got %v", res.Confidence)
	}
	if res.Category != domain.CategoryBilling {
		t.Fatalf("expected billing, got %s", res.Category)
	}
}

func TestClassify_LanguageDetection(t *testing.T) {
	c := keywordClassifier(t)

	res := c.Classify(context.Background(), "hola, necesito una factura para el pedido, gracias")
	if res.Language != "es" {
		t.Fatalf("expected es, got %s", res.Language)
	}

	res = c.Classify(context.Background(), "what is the price for the yearly plan")
	if res.Language != "en" {
		t.Fatalf("expected en, got %s", res.Language)
	}
}

func TestClassify_UrgencySignal(t *testing.T) {
	c := keywordClassifier(t)
	res := c.Classify(context.Background(), "urgent: the login page is broken")
	if res.Context.Urgency != "high" {
		t.Fatalf("expected high urgency, got %s", res.Context.Urgency)
	}
	if res.Priority != domain.PriorityHigh {
		t.Fatalf("expected high priority, got %s", res.Priority)
	}
}

// --- backend path ---

func TestClassify_BackendReplyUsed(t *testing.T) {
	backend := &stubBackend{
		reply: `{"category":"billing","confidence":0.92,"language":"en","urgency":"normal","sentiment":"neutral","complexity":"simple","keywords":["invoice"],"entities":[]}`,
	}
	c := NewClassifier(config.RoutingConfig{PrimaryLanguage: "en", MinConfidence: 0.3}, backend, testLogger())

	res := c.Classify(context.Background(), "my invoice is wrong")
	if res.Category != domain.CategoryBilling {
		t.Fatalf("expected billing from backend, got %s", res.Category)
	}
	if res.Confidence != 0.92 {
		t.Fatalf("expected backend confidence, got %v", res.Confidence)
	}
}

func TestClassify_BackendFailureFallsBack(t *testing.T) {
	backend := &stubBackend{err: domain.ErrBackendUnavailable}
	c := NewClassifier(config.RoutingConfig{PrimaryLanguage: "en", MinConfidence: 0.3}, backend, testLogger())

	res := c.Classify(context.Background(), "I want a refund for this charge")
	if res.Category != domain.CategoryBilling {
		t.Fatalf("expected keyword fallback to billing, got %s", res.Category)
	}
}

func TestClassify_BackendUnknownCategoryFallsBack(t *testing.T) {
	backend := &stubBackend{
		reply: `{"category":"marketing","confidence":0.9,"language":"en"}`,
	}
	c := NewClassifier(config.RoutingConfig{PrimaryLanguage: "en", MinConfidence: 0.3}, backend, testLogger())

	res := c.Classify(context.Background(), "demo of the enterprise plan please")
	if res.Category != domain.CategorySales {
		t.Fatalf("out-of-set backend category must fall back to keywords, got %s", res.Category)
	}
}

// --- routing advice ---

func TestAdvice_LowConfidenceRequiresHuman(t *testing.T) {
	c := keywordClassifier(t)
	advice := c.Advice(domain.IntentResult{
		Category:   domain.CategoryOperations,
		Confidence: 0.2,
		Context:    domain.IntentContext{Urgency: "normal", Sentiment: "neutral"},
	})
	if !advice.RequiresHuman {
		t.Fatal("confidence below 0.3 must require a human")
	}
}

func TestAdvice_HighUrgencyEscalates(t *testing.T) {
	c := keywordClassifier(t)
	advice := c.Advice(domain.IntentResult{
		Category:   domain.CategorySupport,
		Confidence: 0.9,
		Context:    domain.IntentContext{Urgency: "high", Sentiment: "neutral"},
	})
	if !advice.RequiresHuman || advice.Priority != domain.PriorityHigh {
		t.Fatalf("high urgency must force human + high priority, got %+v", advice)
	}
}

func TestAdvice_NegativeSentimentEscalatesPriority(t *testing.T) {
	c := keywordClassifier(t)
	advice := c.Advice(domain.IntentResult{
		Category:   domain.CategorySupport,
		Confidence: 0.9,
		Context:    domain.IntentContext{Urgency: "normal", Sentiment: "negative"},
	})
	if advice.Priority != domain.PriorityHigh {
		t.Fatalf("negative sentiment must escalate priority, got %s", advice.Priority)
	}
	if advice.RequiresHuman {
		t.Fatal("negative sentiment alone must not force a human")
	}
}
