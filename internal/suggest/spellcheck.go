package suggest

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Dictionary is the set of known tags a SpellChecker corrects against.
type Dictionary interface {
	AllTerms() ([]string, error)
	// TermFrequency returns how many posts use the term.
	TermFrequency(term string) (int, error)
}

// Correction is a candidate replacement for an unknown tag.
type Correction struct {
	Term      string  `json:"term"`
	Distance  int     `json:"distance"`
	Frequency int     `json:"frequency"`
	Score     float64 `json:"score"`
}

// SpellChecker suggests known tags for misspelled query terms.
type SpellChecker struct {
	dict           Dictionary
	maxDistance    int
	minFreq        int
	maxSuggestions int

	mu    sync.RWMutex
	terms []string
	known map[string]struct{}
	valid bool
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the largest edit distance considered.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores tags used by fewer than f posts.
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMaxSuggestions caps the corrections returned per term.
func WithMaxSuggestions(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSpellChecker creates a spell checker over dict.
func NewSpellChecker(dict Dictionary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		dict:           dict,
		maxDistance:    2,
		maxSuggestions: 5,
		known:          make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads the known terms from the dictionary.
func (s *SpellChecker) Refresh() error {
	terms, err := s.dict.AllTerms()
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		known[strings.ToLower(t)] = struct{}{}
	}
	s.mu.Lock()
	s.terms, s.known, s.valid = terms, known, true
	s.mu.Unlock()
	return nil
}

// Invalidate makes the next lookup reload the dictionary.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

func (s *SpellChecker) ensure() error {
	s.mu.RLock()
	valid := s.valid
	s.mu.RUnlock()
	if valid {
		return nil
	}
	return s.Refresh()
}

// Known reports whether term is a known tag.
func (s *SpellChecker) Known(term string) bool {
	if err := s.ensure(); err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[strings.ToLower(term)]
	return ok
}

// Suggest returns known tags close to term, best first. Closer and more used tags rank higher.
func (s *SpellChecker) Suggest(term string) []Correction {
	if err := s.ensure(); err != nil {
		return nil
	}
	term = strings.ToLower(term)
	termLen := utf8.RuneCountInString(term)

	s.mu.RLock()
	terms := s.terms
	s.mu.RUnlock()

	out := make([]Correction, 0)
	for _, candidate := range terms {
		if candidate == term {
			continue
		}
		diff := utf8.RuneCountInString(candidate) - termLen
		if diff < 0 {
			diff = -diff
		}
		if diff > s.maxDistance {
			continue
		}
		distance := EditDistance(term, candidate)
		if distance > s.maxDistance {
			continue
		}
		freq, err := s.dict.TermFrequency(candidate)
		if err != nil || freq < s.minFreq {
			continue
		}
		out = append(out, Correction{
			Term:      candidate,
			Distance:  distance,
			Frequency: freq,
			Score:     float64(freq+1) / float64(distance+1),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// Correct rewrites query with the best correction for every unknown term and reports
// whether anything changed. Operator prefixes are kept; wildcard terms are left alone.
func (s *SpellChecker) Correct(query string) (string, bool) {
	tokens := strings.Fields(strings.ToLower(query))
	changed := false
	for i, tok := range tokens {
		prefix, term := "", tok
		if term[0] == '-' || term[0] == '~' {
			prefix, term = term[:1], term[1:]
		}
		if term == "" || strings.HasSuffix(term, "*") || s.Known(term) {
			continue
		}
		if best := s.Suggest(term); len(best) > 0 {
			tokens[i] = prefix + best[0].Term
			changed = true
		}
	}
	if !changed {
		return query, false
	}
	return strings.Join(tokens, " "), true
}
