package core

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {},
}

var noiseMarkers = []string{"error", "invalid", "none", "null", "undefined"}

// IsValidCandidate reports whether a candidate token is worth querying the
// store for. It rejects tokens that are too short, contain structural
// characters from malformed model output, are short bare numbers, or are
// stop words and failure markers.
func IsValidCandidate(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) < 2 {
		return false
	}
	if strings.ContainsAny(candidate, `:"'<>{`) {
		return false
	}

	if isNumeric(candidate) && len(candidate) < 3 {
		return false
	}

	lower := strings.ToLower(candidate)
	if _, ok := stopWords[lower]; ok {
		return false
	}
	for _, marker := range noiseMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// FilterCandidates lowercases candidates and drops the invalid ones.
func FilterCandidates(candidates []string) []string {
	var filtered []string
	for _, candidate := range candidates {
		if IsValidCandidate(candidate) {
			filtered = append(filtered, strings.ToLower(strings.TrimSpace(candidate)))
		}
	}
	return filtered
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
