// Package parse extracts structured JSON from raw completion text.
// Models frequently wrap JSON in code fences or surround it with prose, so
// the parser locates the first balanced object before unmarshalling.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"deskbot/internal/domain"
)

// JSONBlock parses the first JSON object found in raw into v. Handles several
// patterns:
//   - Pure JSON: `{"category":"sales"}`
//   - Code-fenced: ```json\n{...}\n```
//   - Prefixed/suffixed prose: `Sure.\n{...}\nHope that helps.`
//
// Returns domain.ErrUnparseableResponse when no conforming object is found.
func JSONBlock(raw string, v any) error {
	content := strings.TrimSpace(raw)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	// Fast path: try full content as JSON.
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}

	// Fallback: find JSON object boundaries within surrounding text.
	start, end := findJSONBounds(content)
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object in %q", domain.ErrUnparseableResponse, truncate(raw, 80))
	}
	if err := json.Unmarshal([]byte(content[start:end]), v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnparseableResponse, err)
	}
	return nil
}

// findJSONBounds locates the first top-level JSON object ({}) in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++ // skip escaped character
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
