// Package query parses free-text gallery searches and filters posts against them.
//
// A search is a whitespace separated list of terms. Unprefixed terms must all match,
// terms prefixed with "-" must not match and terms prefixed with "~" form a group of
// which at least one must match. A trailing "*" turns a term into a prefix match.
package query

import "strings"

const (
	notPrefix = '-'
	orPrefix  = '~'
	wildcard  = "*"
)

// ParsedQuery is the structured form of a search string. It is never mutated after Parse.
type ParsedQuery struct {
	AndTerms []string `json:"and_terms"`
	NotTerms []string `json:"not_terms"`
	OrTerms  []string `json:"or_terms"`
}

// Parse turns raw into a ParsedQuery. It returns nil when raw is empty or only
// whitespace, which callers treat as "no filtering".
func Parse(raw string) *ParsedQuery {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	q := &ParsedQuery{
		AndTerms: []string{},
		NotTerms: []string{},
		OrTerms:  []string{},
	}
	for _, tok := range strings.Fields(strings.ToLower(raw)) {
		switch tok[0] {
		case notPrefix:
			if term := tok[1:]; term != "" {
				q.NotTerms = append(q.NotTerms, term)
			}
		case orPrefix:
			if term := tok[1:]; term != "" {
				q.OrTerms = append(q.OrTerms, term)
			}
		default:
			q.AndTerms = append(q.AndTerms, tok)
		}
	}
	return q
}

// Empty reports whether q has no terms in any bucket. A query made only of bare
// prefixes ("- ~") parses to an empty query, which filters nothing out.
func (q *ParsedQuery) Empty() bool {
	return q == nil || len(q.AndTerms)+len(q.NotTerms)+len(q.OrTerms) == 0
}

// Terms returns every term in and, not, or order.
func (q *ParsedQuery) Terms() []string {
	if q == nil {
		return nil
	}
	out := make([]string, 0, len(q.AndTerms)+len(q.NotTerms)+len(q.OrTerms))
	out = append(out, q.AndTerms...)
	out = append(out, q.NotTerms...)
	return append(out, q.OrTerms...)
}

// LastToken splits raw into everything before its final term, the final term's
// operator prefix ("-", "~" or "") and the bare final term. It is used by
// autocomplete, which only completes the word being typed.
func LastToken(raw string) (head, prefix, term string) {
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	if trimmed == "" || strings.TrimRight(raw, " \t\r\n") != raw {
		return raw, "", ""
	}
	i := strings.LastIndexAny(raw, " \t\r\n")
	head, term = raw[:i+1], raw[i+1:]
	if term != "" && (term[0] == notPrefix || term[0] == orPrefix) {
		prefix, term = term[:1], term[1:]
	}
	return head, prefix, strings.ToLower(term)
}
