package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"voxnav/internal/types"
)

// rawClassification mirrors the JSON shape the prompts request.
type rawClassification struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
}

// parseClassification extracts and validates the model's JSON answer.
// Intents outside the taxonomy are rejected, never coerced.
func parseClassification(completion string) (rawClassification, error) {
	jsonStr := extractJSON(completion)
	if jsonStr == "" {
		return rawClassification{}, fmt.Errorf("no JSON object in completion")
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return rawClassification{}, fmt.Errorf("malformed classification JSON: %w", err)
	}

	raw.Intent = strings.TrimSpace(strings.ToLower(raw.Intent))
	if !types.IsValidIntent(raw.Intent) {
		return rawClassification{}, fmt.Errorf("intent %q is not in the taxonomy", raw.Intent)
	}
	if raw.Confidence < 0 {
		raw.Confidence = 0
	}
	if raw.Confidence > 1 {
		raw.Confidence = 1
	}
	return raw, nil
}

// extractJSON pulls a JSON object out of a completion that may wrap it in
// markdown fences or prose. Returns "" when no balanced object is found.
func extractJSON(s string) string {
	// Fenced block first.
	if idx := strings.Index(s, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if idx := strings.Index(s, "```"); idx != -1 {
		start := idx + 3
		if nl := strings.Index(s[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}

	// First balanced object, string-aware so braces inside values don't
	// throw the depth count off.
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
