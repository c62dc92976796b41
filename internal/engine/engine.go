// Package engine runs the message-consumption loop: it drains the in-process
// bus and drives the orchestrator with bounded concurrency.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deskbot/internal/bus"
	"deskbot/internal/domain"
	"deskbot/internal/orchestrator"
)

const defaultConcurrency = 4

// Engine consumes inbound messages and returns responses through the bus.
// Concurrency is bounded across messages; within one conversation the
// orchestrator serializes on the conversation id.
type Engine struct {
	orch        *orchestrator.Orchestrator
	bus         *bus.InMemoryBus
	concurrency int
	sweepEvery  time.Duration
	logger      *slog.Logger
}

type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Bus          *bus.InMemoryBus
	Concurrency  int           // max parallel messages (default 4)
	SweepEvery   time.Duration // 0 disables the background sweep
	Logger       *slog.Logger
}

func New(cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		orch:        cfg.Orchestrator,
		bus:         cfg.Bus,
		concurrency: cfg.Concurrency,
		sweepEvery:  cfg.SweepEvery,
		logger:      cfg.Logger,
	}
}

// Run consumes inbound messages until ctx is cancelled or the bus closes.
// It returns after in-flight messages finish.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("engine started", "concurrency", e.concurrency)

	if e.sweepEvery > 0 {
		go e.sweepLoop(ctx)
	}

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	inbound := e.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping")
			wg.Wait()
			return
		case msg, ok := <-inbound:
			if !ok {
				e.logger.Info("inbound channel closed, engine stopping")
				wg.Wait()
				return
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer func() { <-sem; wg.Done() }()
				e.handle(ctx, m)
			}(msg)
		}
	}
}

// ProcessDirect processes one message synchronously, for callers that need a
// blocking reply such as the CLI.
func (e *Engine) ProcessDirect(ctx context.Context, msg domain.InboundMessage) *domain.AgentResponse {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return e.orch.Process(ctx, msg.Content, msg)
}

func (e *Engine) handle(ctx context.Context, msg domain.InboundMessage) {
	e.logger.Info("processing message",
		"channel", msg.Channel,
		"conversation", msg.ConversationID,
		"content_len", len(msg.Content),
	)

	resp := e.orch.Process(ctx, msg.Content, msg)

	e.bus.SendOutbound(domain.OutboundMessage{
		Channel:        msg.Channel,
		ConversationID: msg.ConversationID,
		Content:        resp.Content,
		Response:       resp,
	})
}

// sweepLoop periodically removes conversations past the retention window.
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.orch.SweepExpired(ctx); n > 0 {
				e.logger.Info("retention sweep", "removed", n)
			}
		}
	}
}
