package conversation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deskbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eachStore runs the same contract checks against both implementations.
func eachStore(t *testing.T, run func(t *testing.T, store domain.ConversationStore)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		run(t, NewMemoryStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conv.db"), testLogger())
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		run(t, store)
	})
}

func sampleState(id, tenant string) *domain.ConversationState {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.ConversationState{
		ID:           id,
		TenantID:     tenant,
		CustomerID:   "cust-1",
		Channel:      domain.ChannelWeb,
		CreatedAt:    now,
		LastActivity: now,
		MessageCount: 1,
		CurrentAgent: "operations",
	}
}

func TestStore_GetMissing(t *testing.T) {
	eachStore(t, func(t *testing.T, store domain.ConversationStore) {
		_, err := store.Get(context.Background(), "nope")
		if !errors.Is(err, domain.ErrConversationNotFound) {
			t.Fatalf("expected ErrConversationNotFound, got %v", err)
		}
	})
}

func TestStore_UpsertRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		state := sampleState("conv-1", "acme")
		state.IntentHistory = []domain.Category{domain.CategorySales, domain.CategoryBilling}
		state.EscalationLevel = 2
		state.LastHandoffReason = "operator override"

		if err := store.Upsert(ctx, state); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		got, err := store.Get(ctx, "conv-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.TenantID != "acme" || got.MessageCount != 1 || got.EscalationLevel != 2 {
			t.Fatalf("fields lost in round trip: %+v", got)
		}
		if len(got.IntentHistory) != 2 || got.IntentHistory[1] != domain.CategoryBilling {
			t.Fatalf("intent history lost: %v", got.IntentHistory)
		}
		if got.LastHandoffReason != "operator override" {
			t.Fatalf("handoff reason lost: %q", got.LastHandoffReason)
		}
	})
}

func TestStore_UpsertReplaces(t *testing.T) {
	eachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		state := sampleState("conv-1", "acme")
		if err := store.Upsert(ctx, state); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		state.MessageCount = 7
		state.CurrentAgent = "billing"
		if err := store.Upsert(ctx, state); err != nil {
			t.Fatalf("second upsert: %v", err)
		}

		got, err := store.Get(ctx, "conv-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.MessageCount != 7 || got.CurrentAgent != "billing" {
			t.Fatalf("update lost: %+v", got)
		}
	})
}

func TestStore_GetReturnsCopy(t *testing.T) {
	// Mutating a returned state must not leak into the store without Upsert.
	eachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		state := sampleState("conv-1", "acme")
		state.IntentHistory = []domain.Category{domain.CategorySales}
		if err := store.Upsert(ctx, state); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		first, _ := store.Get(ctx, "conv-1")
		first.MessageCount = 99
		first.RecordIntent(domain.CategoryUnknown)

		second, _ := store.Get(ctx, "conv-1")
		if second.MessageCount != 1 || len(second.IntentHistory) != 1 {
			t.Fatalf("mutation leaked into store: %+v", second)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	eachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		if err := store.Upsert(ctx, sampleState("conv-1", "acme")); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		ok, err := store.Delete(ctx, "conv-1")
		if err != nil || !ok {
			t.Fatalf("expected delete to report true, got %v %v", ok, err)
		}
		ok, err = store.Delete(ctx, "conv-1")
		if err != nil || ok {
			t.Fatalf("second delete must report false, got %v %v", ok, err)
		}
	})
}

func TestStore_ResetTenant(t *testing.T) {
	eachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		for _, tc := range []struct{ id, tenant string }{
			{"conv-1", "acme"}, {"conv-2", "acme"}, {"conv-3", "globex"},
		} {
			if err := store.Upsert(ctx, sampleState(tc.id, tc.tenant)); err != nil {
				t.Fatalf("upsert %s: %v", tc.id, err)
			}
		}

		n, err := store.ResetTenant(ctx, "acme")
		if err != nil {
			t.Fatalf("reset tenant: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 removed, got %d", n)
		}
		if _, err := store.Get(ctx, "conv-3"); err != nil {
			t.Fatalf("other tenant must survive: %v", err)
		}
	})
}

func TestStore_SweepExpired(t *testing.T) {
	eachStore(t, func(t *testing.T, store domain.ConversationStore) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		stale := sampleState("conv-old", "acme")
		stale.LastActivity = now.Add(-48 * time.Hour)
		fresh := sampleState("conv-new", "acme")
		fresh.LastActivity = now

		for _, s := range []*domain.ConversationState{stale, fresh} {
			if err := store.Upsert(ctx, s); err != nil {
				t.Fatalf("upsert %s: %v", s.ID, err)
			}
		}

		n, err := store.SweepExpired(ctx, now.Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 swept, got %d", n)
		}
		if _, err := store.Get(ctx, "conv-new"); err != nil {
			t.Fatalf("fresh conversation must survive: %v", err)
		}
	})
}

func TestRecordIntent_HistoryBounded(t *testing.T) {
	state := &domain.ConversationState{}
	for i := 0; i < 25; i++ {
		state.RecordIntent(domain.CategorySales)
	}
	state.RecordIntent(domain.CategoryBilling)

	if len(state.IntentHistory) != domain.IntentHistoryLimit {
		t.Fatalf("history must cap at %d, got %d", domain.IntentHistoryLimit, len(state.IntentHistory))
	}
	if state.IntentHistory[len(state.IntentHistory)-1] != domain.CategoryBilling {
		t.Fatal("newest intent must be kept")
	}
}
