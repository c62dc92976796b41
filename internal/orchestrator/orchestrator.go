// Package orchestrator composes the safety filter, intent classifier,
// handoff evaluator, responders, and response validator into one
// request/response cycle per message, with per-conversation state,
// per-responder performance metrics, and circuit breakers around responder
// calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deskbot/internal/domain"
	"deskbot/internal/handoff"
	"deskbot/internal/intent"
	"deskbot/internal/metrics"
	"deskbot/internal/responder"
	"deskbot/internal/safety"
)

const (
	defaultRetention = 24 * time.Hour

	humanHandoffMessage = "I'm connecting you with a member of our team who can help you further. Please hold on."
	internalErrorReply  = "We're having technical difficulties on our side. I'm escalating this to a human colleague who will follow up with you."
)

// fallbackKind handles requests whose named responder is unknown or
// circuit-broken.
const fallbackKind = responder.KindOperations

// Config wires the orchestrator's collaborators. Filter, Validator,
// Classifier, Evaluator, Responders, and Store are required.
type Config struct {
	Filter     *safety.Filter
	Validator  *safety.Validator
	Classifier *intent.Classifier
	Evaluator  *handoff.Evaluator
	Responders map[responder.Kind]*responder.Responder
	Store      domain.ConversationStore

	FailureThreshold int
	RecoveryTimeout  time.Duration
	Retention        time.Duration

	Clock  func() time.Time // test seam, defaults to time.Now
	Logger *slog.Logger
}

// Orchestrator is the single entry point for message processing and the
// operator-facing management operations.
type Orchestrator struct {
	filter     *safety.Filter
	validator  *safety.Validator
	classifier *intent.Classifier
	evaluator  *handoff.Evaluator
	responders map[responder.Kind]*responder.Responder
	store      domain.ConversationStore

	breakers  *breakerSet
	perf      *perfTracker
	locks     *keyedMutex
	retention time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}

	return &Orchestrator{
		filter:     cfg.Filter,
		validator:  cfg.Validator,
		classifier: cfg.Classifier,
		evaluator:  cfg.Evaluator,
		responders: cfg.Responders,
		store:      cfg.Store,
		breakers:   newBreakerSet(cfg.FailureThreshold, cfg.RecoveryTimeout),
		perf:       newPerfTracker(),
		locks:      newKeyedMutex(),
		retention:  cfg.Retention,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Process runs one full orchestration cycle for an inbound message. It never
// returns an error: every failure mode degrades to a usable response, at
// worst a generic apologetic reply with the cause in metadata.
func (o *Orchestrator) Process(ctx context.Context, text string, msg domain.InboundMessage) (resp *domain.AgentResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("orchestrator panicked", "conversation", msg.ConversationID, "panic", rec)
			resp = &domain.AgentResponse{
				Content:         internalErrorReply,
				Confidence:      0.0,
				Intent:          domain.CategoryUnknown,
				RequiresHandoff: true,
			}
			resp.Meta()["error"] = fmt.Sprint(rec)
		}
	}()

	unlock := o.locks.lock(msg.ConversationID)
	defer unlock()

	start := o.clock()
	metrics.MessagesTotal.Inc()
	defer func() {
		metrics.PipelineLatency.Observe(o.clock().Sub(start).Seconds())
	}()

	state := o.loadOrCreate(ctx, msg, start)
	state.MessageCount++
	state.LastActivity = start
	defer o.persist(ctx, state)

	verdict := o.filter.Filter(ctx, text)
	if !verdict.Safe {
		metrics.SafetyBlocks.Inc()
		o.logger.Info("message refused by safety filter",
			"conversation", msg.ConversationID, "violations", len(verdict.Violations))

		resp = &domain.AgentResponse{
			Content:         verdict.RefusalMessage,
			Confidence:      verdict.Confidence,
			Intent:          domain.CategoryUnknown,
			RequiresHandoff: verdict.RequiresHumanReview,
		}
		resp.Meta()["safety_violations"] = verdict.Violations
		return resp
	}

	intentRes := o.classifier.Classify(ctx, verdict.FilteredContent)
	state.RecordIntent(intentRes.Category)

	decision := o.evaluator.Evaluate(verdict.FilteredContent, intentRes, *state)
	if decision.ShouldHandoff {
		return o.humanHandoff(state, intentRes, decision)
	}

	kind, ok := responder.KindFor(decision.TargetAgent)
	if !ok {
		o.logger.Warn("unknown target agent, substituting default",
			"target", decision.TargetAgent, "fallback", fallbackKind)
		kind = fallbackKind
	}
	requested := kind

	// One clock read covers the open-check; the same instant backs the
	// breaker decision and any fallback tagging.
	now := o.clock()
	broken := !o.breakers.get(string(kind)).Allow(now)
	if broken && kind != fallbackKind {
		o.logger.Warn("circuit open, substituting fallback responder",
			"agent", kind, "fallback", fallbackKind)
		kind = fallbackKind
	}

	r := o.responders[kind]
	if r == nil {
		panic(fmt.Sprintf("responder %q not wired", kind))
	}

	resp, rerr := r.Respond(ctx, verdict.FilteredContent, intentRes, msg)

	br := o.breakers.get(string(kind))
	if rerr != nil {
		if br.RecordFailure(o.clock()) {
			metrics.BreakerOpens.Inc()
			o.logger.Warn("circuit breaker opened", "agent", kind)
		}
		metrics.FallbacksTotal.Inc()
	} else {
		br.RecordSuccess()
	}

	if requested != kind {
		meta := resp.Meta()
		meta["circuit_breaker_fallback"] = true
		meta["original_agent"] = string(requested)
		meta["fallback_agent"] = string(kind)
	} else {
		resp.Meta()["direct_routing"] = true
	}

	state.CurrentAgent = string(kind)

	resp = o.validator.Validate(ctx, resp)

	if resp.RequiresHandoff {
		metrics.HandoffsTotal.Inc()
	}
	end := o.clock()
	o.perf.record(string(kind), end.Sub(start), resp.Confidence, rerr == nil, resp.RequiresHandoff, end)

	return resp
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, msg domain.InboundMessage, now time.Time) *domain.ConversationState {
	state, err := o.store.Get(ctx, msg.ConversationID)
	if err == nil {
		return state
	}
	if !errors.Is(err, domain.ErrConversationNotFound) {
		// Degraded store: run the pipeline on fresh state rather than fail
		// the message.
		o.logger.Error("conversation store read failed", "conversation", msg.ConversationID, "error", err)
	}
	metrics.ActiveConversations.Inc()
	return &domain.ConversationState{
		ID:         msg.ConversationID,
		TenantID:   msg.TenantID,
		CustomerID: msg.CustomerID,
		Channel:    msg.Channel,
		CreatedAt:  now,
	}
}

func (o *Orchestrator) persist(ctx context.Context, state *domain.ConversationState) {
	if err := o.store.Upsert(ctx, state); err != nil {
		o.logger.Error("conversation store write failed", "conversation", state.ID, "error", err)
	}
}

func (o *Orchestrator) humanHandoff(state *domain.ConversationState, intentRes domain.IntentResult, decision domain.HandoffDecision) *domain.AgentResponse {
	metrics.HandoffsTotal.Inc()
	o.logger.Info("handing conversation to a human",
		"conversation", state.ID, "reason", decision.Reason, "urgency", decision.Urgency)

	state.LastHandoffReason = decision.Reason

	resp := &domain.AgentResponse{
		Content:         humanHandoffMessage,
		Confidence:      decision.Confidence,
		Intent:          intentRes.Category,
		RequiresHandoff: true,
	}
	meta := resp.Meta()
	meta["handoff_reason"] = decision.Reason
	meta["handoff_urgency"] = string(decision.Urgency)

	// No responder ran; only the handoff counter moves, attributed to the
	// responder that would have run.
	agent := string(fallbackKind)
	if kind, ok := responder.KindFor(intentRes.Category); ok {
		agent = string(kind)
	}
	o.perf.recordHandoff(agent, o.clock())

	return resp
}

// --- management operations ---

// ForceHandoff moves a conversation to targetAgent by operator decree and
// bumps the escalation level. Unknown targets land on the default responder.
func (o *Orchestrator) ForceHandoff(ctx context.Context, conversationID, targetAgent, reason string) bool {
	unlock := o.locks.lock(conversationID)
	defer unlock()

	state, err := o.store.Get(ctx, conversationID)
	if err != nil {
		return false
	}

	if _, ok := responder.KindFor(domain.Category(targetAgent)); !ok {
		targetAgent = string(fallbackKind)
	}

	state.PreviousAgent = state.CurrentAgent
	state.CurrentAgent = targetAgent
	state.LastHandoffReason = reason
	state.EscalationLevel++
	state.LastActivity = o.clock()

	o.persist(ctx, state)
	metrics.HandoffsTotal.Inc()
	o.logger.Info("forced handoff",
		"conversation", conversationID, "from", state.PreviousAgent, "to", targetAgent, "reason", reason)
	return true
}

// ResetConversation clears one conversation's state.
func (o *Orchestrator) ResetConversation(ctx context.Context, conversationID string) bool {
	unlock := o.locks.lock(conversationID)
	defer unlock()

	ok, err := o.store.Delete(ctx, conversationID)
	if err != nil {
		o.logger.Error("conversation delete failed", "conversation", conversationID, "error", err)
		return false
	}
	if ok {
		metrics.ActiveConversations.Dec()
	}
	return ok
}

// BulkReset clears every conversation belonging to a tenant and returns how
// many were removed.
func (o *Orchestrator) BulkReset(ctx context.Context, tenantID string) int {
	n, err := o.store.ResetTenant(ctx, tenantID)
	if err != nil {
		o.logger.Error("tenant reset failed", "tenant", tenantID, "error", err)
		return 0
	}
	metrics.ActiveConversations.Set(max64(0, metrics.ActiveConversations.Value()-int64(n)))
	return n
}

// SweepExpired removes conversations inactive beyond the retention window.
func (o *Orchestrator) SweepExpired(ctx context.Context) int {
	cutoff := o.clock().Add(-o.retention)
	n, err := o.store.SweepExpired(ctx, cutoff)
	if err != nil {
		o.logger.Error("conversation sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		metrics.ActiveConversations.Set(max64(0, metrics.ActiveConversations.Value()-int64(n)))
		o.logger.Info("swept expired conversations", "count", n, "cutoff", cutoff)
	}
	return n
}

// Metrics returns the scorecard for one responder.
func (o *Orchestrator) Metrics(agent string) (PerformanceMetrics, bool) {
	return o.perf.snapshot(agent)
}

// AllMetrics returns every responder's scorecard.
func (o *Orchestrator) AllMetrics() map[string]PerformanceMetrics {
	return o.perf.all()
}

// ResetMetrics clears one responder's scorecard. Operator action only.
func (o *Orchestrator) ResetMetrics(agent string) {
	o.perf.reset(agent)
}

// AgentHealth classifies one responder's operational state.
type AgentHealth struct {
	Breaker     BreakerState
	SuccessRate float64
	Status      string // healthy | degraded | recovering | unhealthy
}

// degradedSuccessRate is the floor under which a closed circuit still reads
// as degraded.
const degradedSuccessRate = 0.8

// Health classifies every known responder.
func (o *Orchestrator) Health() map[string]AgentHealth {
	now := o.clock()
	out := make(map[string]AgentHealth)

	for _, kind := range responder.Kinds() {
		name := string(kind)
		state := o.breakers.get(name).State(now)

		m, _ := o.perf.snapshot(name)
		rate := m.SuccessRate()

		status := "healthy"
		switch {
		case state == BreakerOpen:
			status = "unhealthy"
		case state == BreakerHalfOpen:
			status = "recovering"
		case rate < degradedSuccessRate:
			status = "degraded"
		}

		out[name] = AgentHealth{Breaker: state, SuccessRate: rate, Status: status}
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
