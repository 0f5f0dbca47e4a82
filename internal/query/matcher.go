package query

import "strings"

// TermMatches reports whether term matches value. Both are expected lowercased.
// A term ending in "*" matches any value starting with the rest of the term;
// any other term must equal value exactly.
func TermMatches(term, value string) bool {
	if prefix, ok := strings.CutSuffix(term, wildcard); ok {
		return strings.HasPrefix(value, prefix)
	}
	return term == value
}

func anyTagMatches(term string, tags []string) bool {
	for _, tag := range tags {
		if TermMatches(term, tag) {
			return true
		}
	}
	return false
}
