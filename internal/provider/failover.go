package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deskbot/internal/domain"
)

// Failover tries multiple completion backends in order, falling back to the
// next one when the current fails. This sits beneath the orchestrator's
// per-responder circuit breakers: the breakers guard responder behavior, the
// failover chain guards backend availability.
type Failover struct {
	backends []domain.CompletionClient
	logger   *slog.Logger
}

// NewFailover creates a failover chain from the given backends.
// At least one backend is required.
func NewFailover(backends []domain.CompletionClient, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{
		backends: backends,
		logger:   logger,
	}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (f *Failover) Healthy(ctx context.Context) error {
	for _, b := range f.backends {
		if err := b.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy backend in failover chain")
}

// Complete tries each backend in order. Returns the first successful
// completion.
func (f *Failover) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	var lastErr error
	for i, b := range f.backends {
		text, err := b.Complete(ctx, systemPrompt, userText)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback backend",
					"backend", b.Name(),
					"attempt", i+1,
				)
			}
			return text, nil
		}
		lastErr = err
		f.logger.Warn("failover: backend failed, trying next",
			"backend", b.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return "", fmt.Errorf("%w: all backends in failover chain failed: %v", domain.ErrBackendUnavailable, lastErr)
}
