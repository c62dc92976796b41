package safety

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"deskbot/internal/config"
	"deskbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubBackend returns a fixed completion or error.
type stubBackend struct {
	reply string
	err   error
}

func (s *stubBackend) Complete(ctx context.Context, system, user string) (string, error) {
	return s.reply, s.err
}
func (s *stubBackend) Name() string                      { return "stub" }
func (s *stubBackend) Healthy(ctx context.Context) error { return nil }

func newTestFilter(t *testing.T, backend domain.CompletionClient) *Filter {
	t.Helper()
	return NewFilter(config.SafetyConfig{}, backend, testLogger())
}

// --- rule-based pass ---

func TestFilter_EmptyInputIsSafe(t *testing.T) {
	f := newTestFilter(t, nil)
	v := f.Filter(context.Background(), "")
	if !v.Safe {
		t.Fatal("empty input should be safe")
	}
	if len(v.Violations) != 0 {
		t.Fatalf("expected 0 violations, got %d", len(v.Violations))
	}
}

func TestFilter_EmailRedacted(t *testing.T) {
	f := newTestFilter(t, nil)
	v := f.Filter(context.Background(), "my email is john.doe@example.com thanks")
	if !strings.Contains(v.FilteredContent, "[EMAIL_REDACTED]") {
		t.Fatalf("expected redaction tag, got %q", v.FilteredContent)
	}
	if strings.Contains(v.FilteredContent, "john.doe@example.com") {
		t.Fatalf("raw address leaked: %q", v.FilteredContent)
	}
	if !v.Safe {
		t.Fatal("PII-only content should remain processable after redaction")
	}
	if len(v.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", v.Violations)
	}
}

func TestFilter_ToxicMaskedPreservingLength(t *testing.T) {
	f := newTestFilter(t, nil)
	v := f.Filter(context.Background(), "you are an idiot")
	if v.Safe {
		t.Fatal("toxic content should be unsafe")
	}
	if !strings.Contains(v.FilteredContent, "*****") {
		t.Fatalf("expected 5-char mask, got %q", v.FilteredContent)
	}
	if strings.Contains(strings.ToLower(v.FilteredContent), "idiot") {
		t.Fatalf("raw token leaked: %q", v.FilteredContent)
	}
	if !v.RequiresHumanReview {
		t.Fatal("unsafe verdict must require human review")
	}
	if v.RefusalMessage == "" {
		t.Fatal("unsafe verdict must carry a refusal message")
	}
}

func TestFilter_MultiplePIITypes(t *testing.T) {
	f := newTestFilter(t, nil)
	v := f.Filter(context.Background(),
		"reach me at jane@acme.io, card 4111 1111 1111 1111, ssn 123-45-6789")
	for _, tag := range []string{"[EMAIL_REDACTED]", "[CARD_REDACTED]", "[ID_REDACTED]"} {
		if !strings.Contains(v.FilteredContent, tag) {
			t.Fatalf("missing %s in %q", tag, v.FilteredContent)
		}
	}
	for _, raw := range []string{"jane@acme.io", "4111", "123-45-6789"} {
		if strings.Contains(v.FilteredContent, raw) {
			t.Fatalf("raw value %q leaked: %q", raw, v.FilteredContent)
		}
	}
}

func TestFilter_ComplianceTriggerRequiresHuman(t *testing.T) {
	f := newTestFilter(t, nil)
	v := f.Filter(context.Background(), "fix this or I will take legal action")
	if v.Safe {
		t.Fatal("compliance trigger should be unsafe")
	}
	if !v.RequiresHumanReview {
		t.Fatal("compliance trigger must require human review")
	}
}

func TestFilter_MaskingIsIdempotent(t *testing.T) {
	f := newTestFilter(t, nil)
	first := f.Filter(context.Background(), "you idiot, email me at a@b.co")
	second := f.Filter(context.Background(), first.FilteredContent)
	if second.FilteredContent != first.FilteredContent {
		t.Fatalf("re-filtering changed content:\n  first:  %q\n  second: %q",
			first.FilteredContent, second.FilteredContent)
	}
	// Redaction tags and masks must not be flagged as fresh PII.
	for _, viol := range second.Violations {
		if strings.HasPrefix(viol, "pii:") {
			t.Fatalf("re-filter found new PII: %v", second.Violations)
		}
	}
}

func TestFilter_ConfidenceWithinBounds(t *testing.T) {
	f := newTestFilter(t, nil)
	inputs := []string{
		"",
		"hello there",
		"you idiot moron scumbag loser",
		"a@b.co +1 555 123 4567 DE89370400440532013000 123-45-6789",
	}
	for _, in := range inputs {
		v := f.Filter(context.Background(), in)
		if v.Confidence < 0.1 || v.Confidence > 1.0 {
			t.Fatalf("confidence %v out of [0.1,1.0] for %q", v.Confidence, in)
		}
	}
}

// --- backend pass ---

func TestFilter_BackendFailureDoesNotBlockMasking(t *testing.T) {
	f := newTestFilter(t, &stubBackend{err: domain.ErrBackendUnavailable})
	v := f.Filter(context.Background(), "contact a@b.co")
	if !strings.Contains(v.FilteredContent, "[EMAIL_REDACTED]") {
		t.Fatalf("masking must proceed despite backend failure: %q", v.FilteredContent)
	}
}

func TestFilter_BackendUnsafeAdoptsFilteredText(t *testing.T) {
	f := newTestFilter(t, &stubBackend{
		reply: `{"safe": false, "violations": ["veiled threat"], "confidence": 0.9, "filtered_text": "I need help with my account."}`,
	})
	v := f.Filter(context.Background(), "give me access or else")
	if v.Safe {
		t.Fatal("backend unsafe judgment should mark verdict unsafe")
	}
	if v.FilteredContent != "I need help with my account." {
		t.Fatalf("expected backend filtered text adopted, got %q", v.FilteredContent)
	}
}

func TestFilter_BackendUnsafeDoesNotOverrideMasking(t *testing.T) {
	f := newTestFilter(t, &stubBackend{
		reply: `{"safe": false, "violations": ["x"], "confidence": 0.9, "filtered_text": "replacement"}`,
	})
	v := f.Filter(context.Background(), "you idiot")
	if strings.Contains(v.FilteredContent, "replacement") {
		t.Fatalf("rule-based mask must win over backend rewrite: %q", v.FilteredContent)
	}
	if !strings.Contains(v.FilteredContent, "*****") {
		t.Fatalf("expected mask retained, got %q", v.FilteredContent)
	}
}

func TestFilter_UnparseableBackendOutputIgnored(t *testing.T) {
	f := newTestFilter(t, &stubBackend{reply: "I think it's fine, probably."})
	v := f.Filter(context.Background(), "hello, where is my order?")
	if !v.Safe {
		t.Fatalf("unparseable backend output must contribute nothing: %+v", v)
	}
	if len(v.Violations) != 0 {
		t.Fatalf("expected 0 violations, got %v", v.Violations)
	}
}
