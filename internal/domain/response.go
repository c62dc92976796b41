package domain

// AgentResponse is the final product of one orchestration cycle: the reply
// text plus the side metadata operators and tests use to distinguish how it
// was produced.
//
// Well-known metadata keys: "error", "fallback_used",
// "circuit_breaker_fallback", "direct_routing", "original_agent",
// "fallback_agent", "should_create_lead", "analysis".
type AgentResponse struct {
	Content          string
	Confidence       float64
	Intent           Category
	RequiresHandoff  bool
	SuggestedActions []string
	Metadata         map[string]any
}

// Meta returns the response metadata map, allocating it on first use.
func (r *AgentResponse) Meta() map[string]any {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	return r.Metadata
}
