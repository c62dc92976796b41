package domain

// Urgency grades how quickly a human needs to pick up a handed-off
// conversation.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// HandoffDecision is a pure value recomputed for every message; it is never
// persisted or mutated in place.
type HandoffDecision struct {
	ShouldHandoff bool
	TargetAgent   Category // meaningful when ShouldHandoff is false: where to route
	Reason        string
	Confidence    float64
	RequiresHuman bool
	Urgency       Urgency
}
