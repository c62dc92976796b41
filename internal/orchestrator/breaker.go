package orchestrator

import (
	"sync"
	"time"
)

// BreakerState is the circuit state for one responder.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 300 * time.Second
)

// Breaker is a per-responder circuit breaker. The open/half-open distinction
// is derived from the clock at read time, so callers read the clock once and
// pass the same instant to every check within one evaluation.
type Breaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration
	failures         int
	lastFailure      time.Time
	tripped          bool
}

func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = defaultRecoveryTimeout
	}
	return &Breaker{failureThreshold: failureThreshold, recoveryTimeout: recoveryTimeout}
}

// State reports the circuit state as of now.
func (b *Breaker) State(now time.Time) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(now)
}

func (b *Breaker) stateLocked(now time.Time) BreakerState {
	if !b.tripped {
		return BreakerClosed
	}
	if now.Sub(b.lastFailure) >= b.recoveryTimeout {
		return BreakerHalfOpen
	}
	return BreakerOpen
}

// Allow reports whether a call may proceed as of now. Closed and half-open
// both allow one attempt through.
func (b *Breaker) Allow(now time.Time) bool {
	return b.State(now) != BreakerOpen
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.tripped = false
}

// RecordFailure counts a failure at now and reports whether this call
// tripped the circuit open.
func (b *Breaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTripped := b.tripped
	b.failures++
	b.lastFailure = now
	if b.failures >= b.failureThreshold {
		b.tripped = true
	}
	return b.tripped && !wasTripped
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// breakerSet lazily creates one breaker per responder name.
type breakerSet struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration
	breakers         map[string]*Breaker
}

func newBreakerSet(failureThreshold int, recoveryTimeout time.Duration) *breakerSet {
	return &breakerSet{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		breakers:         make(map[string]*Breaker),
	}
}

func (s *breakerSet) get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[name]
	if !ok {
		b = NewBreaker(s.failureThreshold, s.recoveryTimeout)
		s.breakers[name] = b
	}
	return b
}

func (s *breakerSet) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.breakers))
	for name := range s.breakers {
		names = append(names, name)
	}
	return names
}
