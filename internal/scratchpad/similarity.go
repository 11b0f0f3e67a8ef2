package scratchpad

import (
	"strings"
	"unicode"
)

// tokenize splits a query into a lowercased set of word tokens. Word
// characters are Unicode letters, digits and underscore, so CJK text
// tokenizes too. Single-character tokens are dropped.
func tokenize(query string) map[string]struct{} {
	lowered := strings.ToLower(query)
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, lowered)

	tokens := map[string]struct{}{}
	for _, w := range strings.Fields(mapped) {
		if len([]rune(w)) > 1 {
			tokens[w] = struct{}{}
		}
	}
	return tokens
}

// jaccard computes set overlap similarity in [0, 1].
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// findSimilarQuery returns the first previous query that is an exact match
// or whose token overlap reaches the threshold.
func findSimilarQuery(query string, previous []string, threshold float64) (string, bool) {
	newTokens := tokenize(query)
	for _, prev := range previous {
		if query == prev {
			return prev, true
		}
		if jaccard(newTokens, tokenize(prev)) >= threshold {
			return prev, true
		}
	}
	return "", false
}
