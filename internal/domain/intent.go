package domain

// Category is one of the fixed business categories a message can route to.
// The set is closed: classification always resolves to a member, with
// CategoryOperations as the catch-all and CategoryUnknown reserved for
// intent history entries that never resolved.
type Category string

const (
	CategorySales      Category = "sales"
	CategorySupport    Category = "support"
	CategoryBilling    Category = "billing"
	CategoryOperations Category = "operations"
	CategoryUnknown    Category = "unknown"
)

// Categories returns the routable categories in enumeration order.
// Keyword-fallback ties break in this order.
func Categories() []Category {
	return []Category{CategorySales, CategorySupport, CategoryBilling, CategoryOperations}
}

// Valid reports whether c is a member of the known category set.
func (c Category) Valid() bool {
	switch c {
	case CategorySales, CategorySupport, CategoryBilling, CategoryOperations, CategoryUnknown:
		return true
	}
	return false
}

// Priority orders how quickly a message should be handled downstream.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IntentContext carries lightweight signals extracted during classification.
type IntentContext struct {
	Urgency    string `json:"urgency"`    // low | normal | high
	Sentiment  string `json:"sentiment"`  // negative | neutral | positive
	Complexity string `json:"complexity"` // simple | moderate | complex
}

// IntentResult is the classifier's verdict for one message. Created once per
// message and read-only afterward.
type IntentResult struct {
	Category   Category
	Confidence float64 // always in [0,1]
	Language   string  // ISO 639-1 code
	Context    IntentContext
	Keywords   []string
	Entities   []string
	Priority   Priority
}

// RoutingAdvice is derived from an IntentResult and tells the orchestrator
// where to send the message and how carefully.
type RoutingAdvice struct {
	TargetAgent   Category
	Priority      Priority
	RequiresHuman bool
}
