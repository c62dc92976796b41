package orchestrator

import (
	"sync"
	"time"
)

// confidenceWindowCap bounds the rolling confidence window per responder.
const confidenceWindowCap = 100

// PerformanceMetrics is the per-responder scorecard. Counters only reset by
// explicit operator action.
type PerformanceMetrics struct {
	Requests         int64
	Successes        int64
	Failures         int64
	Handoffs         int64
	AvgLatency       time.Duration
	RecentConfidence []float64
	LastUpdated      time.Time
}

// SuccessRate is successes over requests; 1.0 before any traffic so an idle
// responder reads as healthy.
func (m *PerformanceMetrics) SuccessRate() float64 {
	if m.Requests == 0 {
		return 1.0
	}
	return float64(m.Successes) / float64(m.Requests)
}

// AvgConfidence averages the rolling confidence window.
func (m *PerformanceMetrics) AvgConfidence() float64 {
	if len(m.RecentConfidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range m.RecentConfidence {
		sum += c
	}
	return sum / float64(len(m.RecentConfidence))
}

// perfTracker accumulates per-responder metrics behind one mutex; reads
// return copies so reporting never blocks the pipeline for long.
type perfTracker struct {
	mu      sync.Mutex
	byAgent map[string]*PerformanceMetrics
}

func newPerfTracker() *perfTracker {
	return &perfTracker{byAgent: make(map[string]*PerformanceMetrics)}
}

func (t *perfTracker) record(agent string, latency time.Duration, confidence float64, success, handoff bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.byAgent[agent]
	if !ok {
		m = &PerformanceMetrics{}
		t.byAgent[agent] = m
	}

	m.Requests++
	if success {
		m.Successes++
	} else {
		m.Failures++
	}
	if handoff {
		m.Handoffs++
	}

	// Running average keeps the latency sum from overflowing.
	m.AvgLatency += (latency - m.AvgLatency) / time.Duration(m.Requests)

	m.RecentConfidence = append(m.RecentConfidence, confidence)
	if len(m.RecentConfidence) > confidenceWindowCap {
		m.RecentConfidence = m.RecentConfidence[len(m.RecentConfidence)-confidenceWindowCap:]
	}
	m.LastUpdated = now
}

// recordHandoff bumps only the handoff counter, for cycles where the
// conversation left automation before any responder ran.
func (t *perfTracker) recordHandoff(agent string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.byAgent[agent]
	if !ok {
		m = &PerformanceMetrics{}
		t.byAgent[agent] = m
	}
	m.Handoffs++
	m.LastUpdated = now
}

// snapshot returns a copy of one responder's metrics.
func (t *perfTracker) snapshot(agent string) (PerformanceMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.byAgent[agent]
	if !ok {
		return PerformanceMetrics{}, false
	}
	out := *m
	out.RecentConfidence = append([]float64(nil), m.RecentConfidence...)
	return out, true
}

// all returns a copy of every responder's metrics.
func (t *perfTracker) all() map[string]PerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]PerformanceMetrics, len(t.byAgent))
	for agent, m := range t.byAgent {
		c := *m
		c.RecentConfidence = append([]float64(nil), m.RecentConfidence...)
		out[agent] = c
	}
	return out
}

// reset clears one responder's scorecard. Operator action only.
func (t *perfTracker) reset(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byAgent, agent)
}
