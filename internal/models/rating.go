package models

import (
	"fmt"
	"strings"
)

// Rating is the content-sensitivity classification of a post.
type Rating string

const (
	RatingSafe         Rating = "safe"
	RatingQuestionable Rating = "questionable"
	RatingExplicit     Rating = "explicit"
)

// AllRatings lists ratings in display order.
var AllRatings = []Rating{RatingSafe, RatingQuestionable, RatingExplicit}

// Valid reports whether r is a known rating.
func (r Rating) Valid() bool {
	switch r {
	case RatingSafe, RatingQuestionable, RatingExplicit:
		return true
	}
	return false
}

// ParseRating parses a rating name case-insensitively.
func ParseRating(s string) (Rating, error) {
	r := Rating(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown rating %q", s)
	}
	return r, nil
}

// RatingSet is a set of ratings, kept in display order without duplicates.
type RatingSet []Rating

// DefaultRatings is the set shown to anonymous visitors.
func DefaultRatings() RatingSet {
	return RatingSet{RatingSafe}
}

// NewRatingSet builds a set from rs, dropping unknown and duplicate values.
// An empty result falls back to DefaultRatings.
func NewRatingSet(rs ...Rating) RatingSet {
	want := make(map[Rating]bool, len(rs))
	for _, r := range rs {
		want[r] = true
	}
	set := make(RatingSet, 0, len(AllRatings))
	for _, r := range AllRatings {
		if want[r] {
			set = append(set, r)
		}
	}
	if len(set) == 0 {
		return DefaultRatings()
	}
	return set
}

// ParseRatingSet parses a comma separated list such as "safe,explicit".
// Unknown names are ignored.
func ParseRatingSet(s string) RatingSet {
	var rs []Rating
	for _, part := range strings.Split(s, ",") {
		if r, err := ParseRating(part); err == nil {
			rs = append(rs, r)
		}
	}
	return NewRatingSet(rs...)
}

// Contains reports whether r is in the set.
func (s RatingSet) Contains(r Rating) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

// IsDefault reports whether the set is exactly {safe}.
func (s RatingSet) IsDefault() bool {
	return len(s) == 1 && s[0] == RatingSafe
}

// Strings returns the rating names.
func (s RatingSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

func (s RatingSet) String() string {
	return strings.Join(s.Strings(), ",")
}
