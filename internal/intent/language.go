package intent

import "strings"

// languageDetector scans for language-specific stop words on token
// boundaries and picks the language with the most hits, defaulting to the
// primary supported language.
type languageDetector struct {
	primary string
	order   []string // primary first, then extras in config order
}

// stopWords are small, high-frequency function words unlikely to collide
// across the supported set.
var stopWords = map[string][]string{
	"en": {"the", "is", "are", "you", "what", "how", "can", "my", "and", "for", "with", "this"},
	"es": {"el", "la", "los", "las", "es", "que", "como", "para", "por", "una", "gracias", "hola"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ich", "sie", "wie", "mit", "danke", "bitte"},
	"fr": {"le", "la", "les", "est", "que", "comment", "pour", "avec", "une", "merci", "bonjour"},
}

func newLanguageDetector(primary string, extras []string) *languageDetector {
	if primary == "" {
		primary = "en"
	}
	order := []string{primary}
	for _, code := range extras {
		if code != primary {
			order = append(order, code)
		}
	}
	return &languageDetector{primary: primary, order: order}
}

func (d *languageDetector) codes() []string {
	return d.order
}

// detect tokenizes text and counts stop-word membership per language.
func (d *languageDetector) detect(text string) string {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return d.primary
	}

	// Strip common punctuation from token edges.
	for i, tok := range tokens {
		tokens[i] = strings.Trim(tok, ".,!?;:\"'()")
	}

	best := d.primary
	bestHits := 0
	for _, code := range d.order {
		words, ok := stopWords[code]
		if !ok {
			continue
		}
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[w] = true
		}
		hits := 0
		for _, tok := range tokens {
			if set[tok] {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = code
		}
	}
	return best
}

// normalize maps a backend-reported code onto the supported set.
func (d *languageDetector) normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return d.primary
	}
	if len(code) > 2 {
		code = code[:2]
	}
	for _, supported := range d.order {
		if code == supported {
			return code
		}
	}
	return d.primary
}
