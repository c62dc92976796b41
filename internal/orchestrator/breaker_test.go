package orchestrator

import (
	"testing"
	"time"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(5, 300*time.Second)
	now := time.Now()

	for i := 0; i < 4; i++ {
		b.RecordFailure(now)
	}
	if b.State(now) != BreakerClosed {
		t.Fatalf("4 failures must not trip a threshold of 5, state %s", b.State(now))
	}

	tripped := b.RecordFailure(now)
	if !tripped {
		t.Fatal("fifth failure must report the trip")
	}
	if b.State(now) != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State(now))
	}
	if b.Allow(now) {
		t.Fatal("open circuit must not allow calls")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(5, 300*time.Second)
	now := time.Now()

	for i := 0; i < 4; i++ {
		b.RecordFailure(now)
	}
	b.RecordSuccess()
	if b.Failures() != 0 {
		t.Fatalf("success must clear the count, got %d", b.Failures())
	}
	b.RecordFailure(now)
	if b.State(now) != BreakerClosed {
		t.Fatal("one failure after a reset must not trip the circuit")
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	b := NewBreaker(2, 300*time.Second)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	if b.State(now) != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State(now))
	}

	later := now.Add(300 * time.Second)
	if b.State(later) != BreakerHalfOpen {
		t.Fatalf("expected half-open after recovery timeout, got %s", b.State(later))
	}
	if !b.Allow(later) {
		t.Fatal("half-open must allow one attempt")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := NewBreaker(2, 300*time.Second)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	later := now.Add(301 * time.Second)
	if b.State(later) != BreakerHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State(later))
	}

	b.RecordSuccess()
	if b.State(later) != BreakerClosed {
		t.Fatalf("half-open success must close, got %s", b.State(later))
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(2, 300*time.Second)
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)
	later := now.Add(301 * time.Second)

	tripped := b.RecordFailure(later)
	if tripped {
		t.Fatal("re-opening from half-open is not a fresh trip")
	}
	if b.State(later) != BreakerOpen {
		t.Fatalf("half-open failure must reopen, got %s", b.State(later))
	}
	// The recovery window restarts from the new failure.
	if b.State(later.Add(299*time.Second)) != BreakerOpen {
		t.Fatal("recovery window must restart from the latest failure")
	}
}
