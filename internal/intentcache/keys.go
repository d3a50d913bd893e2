package intentcache

import (
	"strings"
	"unicode"

	"voxnav/internal/config"
)

// NormalizeText lowercases, strips punctuation, and collapses whitespace so
// trivially different utterances share a key.
func NormalizeText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		default:
			// punctuation dropped
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// buildKey derives the cache key from the normalized utterance and as much
// context as the configured strategy folds in.
func buildKey(strategy config.KeyStrategy, normalized string, rc ReducedContext) string {
	switch strategy {
	case config.KeyTextContext:
		return normalized + "|" + rc.PageType + "|" + string(rc.Mode)
	case config.KeyFullContext:
		return normalized + "|" + rc.PageType + "|" + string(rc.Mode) + "|" + rc.Role
	default: // config.KeyTextOnly
		return normalized
	}
}

// tokenize splits a normalized phrase into tokens for overlap matching.
func tokenize(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// tokenOverlap returns common-tokens / max(len1, len2), the similarity
// measure used for fuzzy pattern matching.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	common := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if set[t] && !seen[t] {
			common++
			seen[t] = true
		}
	}
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return float64(common) / float64(max)
}
