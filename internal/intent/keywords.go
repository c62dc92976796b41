package intent

import "deskbot/internal/domain"

// defaultKeywords seed the deterministic fallback scorer. Config may replace
// a category's list wholesale; scores are normalized by list length so
// longer lists are not inherently favored.
var defaultKeywords = map[domain.Category][]string{
	domain.CategorySales: {
		"price", "pricing", "cost", "quote", "buy", "purchase",
		"demo", "trial", "plan", "upgrade", "subscription",
		"discount", "enterprise", "license",
	},
	domain.CategorySupport: {
		"error", "bug", "crash", "broken", "not working", "doesn't work",
		"issue", "problem", "help", "fix", "install", "login",
		"password", "reset", "slow",
	},
	domain.CategoryBilling: {
		"invoice", "bill", "billing", "charge", "charged", "refund",
		"payment", "card", "receipt", "overcharged", "cancel",
	},
	domain.CategoryOperations: {
		"hours", "address", "location", "open", "delivery", "shipping",
		"schedule", "appointment", "contact", "holiday", "return policy",
	},
}
