package domain

// SafetyVerdict is the result of one safety-filter invocation. Immutable.
//
// FilteredContent is always a complete, displayable string: unsafe input is
// masked or redacted in place, never truncated.
type SafetyVerdict struct {
	Safe                bool
	FilteredContent     string
	Violations          []string
	Confidence          float64 // in [0.1, 1.0]
	RequiresHumanReview bool
	RefusalMessage      string // set only when Safe is false
}
