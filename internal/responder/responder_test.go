package responder

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

// scriptedBackend replays one reply (or error) per call, in order. The
// responder makes two calls per message: analysis first, draft second.
type scriptedBackend struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedBackend) Complete(ctx context.Context, system, user string) (string, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var reply string
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return reply, err
}
func (s *scriptedBackend) Name() string                      { return "scripted" }
func (s *scriptedBackend) Healthy(ctx context.Context) error { return nil }

type downBackend struct{}

func (downBackend) Complete(ctx context.Context, system, user string) (string, error) {
	return "", domain.ErrBackendUnavailable
}
func (downBackend) Name() string                      { return "down" }
func (downBackend) Healthy(ctx context.Context) error { return domain.ErrBackendUnavailable }

type stubKnowledge struct {
	passages []domain.Passage
	err      error
}

func (s *stubKnowledge) Search(ctx context.Context, tenantID, query string, limit int, minSimilarity float64) ([]domain.Passage, error) {
	return s.passages, s.err
}

type panicKnowledge struct{}

func (panicKnowledge) Search(ctx context.Context, tenantID, query string, limit int, minSimilarity float64) ([]domain.Passage, error) {
	panic("index corrupted")
}

func testMessage() domain.InboundMessage {
	return domain.InboundMessage{TenantID: "acme", ConversationID: "conv-1"}
}

// --- sales ---

func TestSales_PricingFallbackCreatesLead(t *testing.T) {
	r := New(KindSales, downBackend{}, nil, config.ResponderProfile{}, testLogger())

	resp, err := r.Respond(context.Background(), "What's your pricing for the enterprise plan?", domain.IntentResult{}, testMessage())
	if err == nil {
		t.Fatal("backend failure must be reported for breaker accounting")
	}
	if resp == nil || resp.Content == "" {
		t.Fatal("response must still be usable")
	}
	if lead, _ := resp.Metadata["should_create_lead"].(bool); !lead {
		t.Fatal("pricing intent must set should_create_lead")
	}
	if used, _ := resp.Metadata["fallback_used"].(bool); !used {
		t.Fatal("expected fallback_used marker")
	}
	if resp.Confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence %v, got %v", fallbackConfidence, resp.Confidence)
	}
	// "enterprise" qualifies the buyer as high, which forces a handoff.
	if !resp.RequiresHandoff {
		t.Fatal("high qualification must require handoff")
	}
}

func TestSales_BackendMediumQualification(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"qualification":"medium","intentType":"question","buyingSignals":["asked about features"]}`,
		"Happy to walk you through the feature set.",
	}}
	r := New(KindSales, backend, nil, config.ResponderProfile{}, testLogger())

	resp, err := r.Respond(context.Background(), "does the product support exports?", domain.IntentResult{}, testMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RequiresHandoff {
		t.Fatal("medium qualification must not hand off")
	}
	if lead, _ := resp.Metadata["should_create_lead"].(bool); !lead {
		t.Fatal("medium qualification must still create a lead")
	}
	if resp.Content != "Happy to walk you through the feature set." {
		t.Fatalf("expected drafted reply, got %q", resp.Content)
	}
	if resp.Confidence != backendConfidence {
		t.Fatalf("expected backend confidence, got %v", resp.Confidence)
	}
}

func TestSales_LowQualificationNoLead(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"qualification":"low","intentType":"other","buyingSignals":[]}`,
		"Thanks for reaching out.",
	}}
	r := New(KindSales, backend, nil, config.ResponderProfile{}, testLogger())

	resp, _ := r.Respond(context.Background(), "just browsing", domain.IntentResult{}, testMessage())
	if lead, _ := resp.Metadata["should_create_lead"].(bool); lead {
		t.Fatal("low qualification without buying intent must not create a lead")
	}
}

// --- support ---

func TestSupport_CriticalSeverityHandsOff(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"severity":"critical","category":"data","troubleshootingSteps":[]}`,
		"We are escalating this right away.",
	}}
	r := New(KindSupport, backend, nil, config.ResponderProfile{}, testLogger())

	resp, _ := r.Respond(context.Background(), "production is down and we lost all records", domain.IntentResult{}, testMessage())
	if !resp.RequiresHandoff {
		t.Fatal("critical severity must hand off")
	}
	if resp.Metadata["estimated_resolution"] != "immediate" {
		t.Fatalf("critical resolution must be immediate, got %v", resp.Metadata["estimated_resolution"])
	}
}

func TestSupport_FallbackSeverityFromLexicon(t *testing.T) {
	r := New(KindSupport, downBackend{}, nil, config.ResponderProfile{}, testLogger())

	resp, _ := r.Respond(context.Background(), "the whole service is down since this morning", domain.IntentResult{}, testMessage())
	if !resp.RequiresHandoff {
		t.Fatal("lexicon must grade an outage as handoff-worthy")
	}
	if resp.Metadata["estimated_resolution"] != "immediate" {
		t.Fatalf("expected immediate resolution, got %v", resp.Metadata["estimated_resolution"])
	}
}

func TestSupport_LowSeverityNoHandoff(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"severity":"low","category":"general","troubleshootingSteps":["restart"]}`,
		"Try restarting first.",
	}}
	r := New(KindSupport, backend, nil, config.ResponderProfile{}, testLogger())

	resp, _ := r.Respond(context.Background(), "minor cosmetic glitch in settings", domain.IntentResult{}, testMessage())
	if resp.RequiresHandoff {
		t.Fatal("low severity must not hand off")
	}
	if resp.Metadata["estimated_resolution"] == "immediate" {
		t.Fatal("only critical severity resolves immediately")
	}
}

// --- billing ---

func TestBilling_SensitiveTokensForceHandoff(t *testing.T) {
	// Backend explicitly says not sensitive; the raw-text token check must
	// still flag "amount" and win.
	backend := &scriptedBackend{replies: []string{
		`{"category":"general","urgency":"normal","sensitiveData":false,"accountAccessRequired":false}`,
		"Let me check that for you.",
	}}
	r := New(KindBilling, backend, nil, config.ResponderProfile{}, testLogger())

	resp, _ := r.Respond(context.Background(), "the amount on my statement looks wrong", domain.IntentResult{}, testMessage())
	if !resp.RequiresHandoff {
		t.Fatal("sensitive token in raw text must force handoff")
	}
}

func TestBilling_RefundCategoryHandsOff(t *testing.T) {
	r := New(KindBilling, downBackend{}, nil, config.ResponderProfile{}, testLogger())

	resp, err := r.Respond(context.Background(), "I would like my money back for last month", domain.IntentResult{}, testMessage())
	if err == nil {
		t.Fatal("expected backend error to be reported")
	}
	a, ok := resp.Metadata["analysis"].(billingAnalysis)
	if !ok {
		t.Fatalf("expected billing analysis in metadata, got %T", resp.Metadata["analysis"])
	}
	if a.Category != "refund" {
		t.Fatalf("expected refund category, got %q", a.Category)
	}
	if !resp.RequiresHandoff {
		t.Fatal("refund category must hand off")
	}
}

func TestBilling_KnownFalsePositiveIsKept(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"category":"general","urgency":"low","sensitiveData":false,"accountAccessRequired":false}`,
		"Glad you asked!",
	}}
	r := New(KindBilling, backend, nil, config.ResponderProfile{}, testLogger())

	// "card" over-fires here; the blunt token rule is intentional.
	resp, _ := r.Respond(context.Background(), "do you sell card games", domain.IntentResult{}, testMessage())
	if !resp.RequiresHandoff {
		t.Fatal("token heuristic is literal, card must trigger it")
	}
}

// --- operations ---

func TestOperations_SelfServeNoHandoff(t *testing.T) {
	r := New(KindOperations, downBackend{}, nil, config.ResponderProfile{}, testLogger())

	resp, _ := r.Respond(context.Background(), "what are your opening hours", domain.IntentResult{}, testMessage())
	if resp.RequiresHandoff {
		t.Fatal("self-servable inquiry must not hand off")
	}
	a, ok := resp.Metadata["analysis"].(operationsAnalysis)
	if !ok || a.InquiryType != "hours" {
		t.Fatalf("expected hours inquiry, got %+v", resp.Metadata["analysis"])
	}
}

func TestOperations_ComplexUnservableHandsOff(t *testing.T) {
	r := New(KindOperations, downBackend{}, nil, config.ResponderProfile{}, testLogger())

	text := "we have a very unusual multi step request involving several departments and " +
		"none of the usual documented procedures seem to apply to what we actually need done here"
	if n := len(strings.Fields(text)); n <= complexWordCount {
		t.Fatalf("test message must exceed %d words, has %d", complexWordCount, n)
	}

	resp, _ := r.Respond(context.Background(), text, domain.IntentResult{}, testMessage())
	if !resp.RequiresHandoff {
		t.Fatal("complex non-self-servable inquiry must hand off")
	}
}

func TestOperations_ShortUnservableStaysAutomated(t *testing.T) {
	r := New(KindOperations, downBackend{}, nil, config.ResponderProfile{}, testLogger())

	resp, _ := r.Respond(context.Background(), "quick odd question", domain.IntentResult{}, testMessage())
	if resp.RequiresHandoff {
		t.Fatal("short message must not hand off even without a self-serve match")
	}
}

// --- shared pipeline ---

func TestRespond_KnowledgePassagesReachTheDraftPrompt(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"inquiryType":"policy","canSelfServe":true}`,
		"Returns are accepted within 30 days (see Returns Policy).",
	}}
	knowledge := &stubKnowledge{passages: []domain.Passage{
		{Content: "Returns accepted within 30 days.", Citation: "Returns Policy", Similarity: 0.9},
	}}
	r := New(KindOperations, backend, knowledge, config.ResponderProfile{}, testLogger())

	resp, err := r.Respond(context.Background(), "what is your return policy", domain.IntentResult{}, testMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected analysis and draft calls, got %d", backend.calls)
	}
	if resp.Content == "" {
		t.Fatal("expected drafted content")
	}
}

func TestRespond_KnowledgeFailureDoesNotFailTheResponder(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"inquiryType":"general","canSelfServe":true}`,
		"Here you go.",
	}}
	knowledge := &stubKnowledge{err: domain.ErrBackendUnavailable}
	r := New(KindOperations, backend, knowledge, config.ResponderProfile{}, testLogger())

	resp, err := r.Respond(context.Background(), "hello there", domain.IntentResult{}, testMessage())
	if err != nil {
		t.Fatalf("retrieval failure must not surface as responder failure: %v", err)
	}
	if resp.Content != "Here you go." {
		t.Fatalf("expected drafted reply, got %q", resp.Content)
	}
}

func TestRespond_PanicDegradesGracefully(t *testing.T) {
	backend := &scriptedBackend{replies: []string{`{}`, "fine"}}
	r := New(KindSupport, backend, panicKnowledge{}, config.ResponderProfile{}, testLogger())

	resp, err := r.Respond(context.Background(), "anything", domain.IntentResult{}, testMessage())
	if err == nil {
		t.Fatal("panic must be reported as an error")
	}
	if resp == nil {
		t.Fatal("panic must still yield a response")
	}
	if resp.Confidence != degradedConfidence || !resp.RequiresHandoff {
		t.Fatalf("expected degraded response, got %+v", resp)
	}
}

func TestRespond_EmptyDraftFallsBackToCanned(t *testing.T) {
	backend := &scriptedBackend{replies: []string{
		`{"severity":"low","category":"general","troubleshootingSteps":[]}`,
		"   ",
	}}
	r := New(KindSupport, backend, nil, config.ResponderProfile{}, testLogger())

	resp, err := r.Respond(context.Background(), "small thing", domain.IntentResult{}, testMessage())
	if err == nil {
		t.Fatal("empty draft must be reported")
	}
	if resp.Content != defaultCannedReplies[KindSupport] {
		t.Fatalf("expected canned reply, got %q", resp.Content)
	}
}

func TestProfileOverridesApply(t *testing.T) {
	r := New(KindSales, downBackend{}, nil, config.ResponderProfile{
		CannedReply: "Our team will call you.",
		MaxPassages: 3,
	}, testLogger())

	resp, _ := r.Respond(context.Background(), "zzz", domain.IntentResult{}, testMessage())
	if resp.Content != "Our team will call you." {
		t.Fatalf("profile canned reply must win, got %q", resp.Content)
	}
	if r.maxPassages != 3 {
		t.Fatalf("expected maxPassages 3, got %d", r.maxPassages)
	}
	if r.threshold != defaultThresholds[KindSales] {
		t.Fatalf("zero threshold must keep the default, got %v", r.threshold)
	}
}
