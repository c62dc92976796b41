package safety

import "regexp"

// piiPattern pairs a PII shape detector with its redaction tag. Matches are
// replaced with the tag, never with any part of the raw value.
type piiPattern struct {
	name string
	re   *regexp.Regexp
	tag  string
}

// Order matters: more specific shapes run before the generic digit runs so
// an IBAN is not half-consumed by the phone detector.
var piiPatterns = []piiPattern{
	{
		name: "email",
		re:   regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		tag:  "[EMAIL_REDACTED]",
	},
	{
		name: "iban",
		re:   regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`),
		tag:  "[IBAN_REDACTED]",
	},
	{
		name: "national_id",
		re:   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		tag:  "[ID_REDACTED]",
	},
	{
		name: "payment_card",
		re:   regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
		tag:  "[CARD_REDACTED]",
	},
	{
		name: "phone",
		re:   regexp.MustCompile(`\+?\d{1,3}[ .-]?\(?\d{2,4}\)?(?:[ .-]?\d{2,4}){2,4}`),
		tag:  "[PHONE_REDACTED]",
	},
}

// defaultToxicWords is the built-in toxic vocabulary. Matched tokens are
// masked in place with '*' characters, preserving token length.
// Config may extend this list, not replace it.
var defaultToxicWords = []string{
	"idiot", "idiots", "stupid", "moron", "morons", "dumbass",
	"asshole", "assholes", "bastard", "bastards", "bitch",
	"shit", "bullshit", "fuck", "fucking", "fucked",
	"scumbag", "scumbags", "loser", "losers",
}

// complianceTriggers flag legal/compliance language that demands human
// review before any automated reply.
var complianceTriggers = []string{
	"lawsuit", "sue you", "suing you", "legal action",
	"my attorney", "my lawyer", "court order",
	"gdpr complaint", "data protection complaint", "regulator",
}
