package gallery

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperjump/booru/internal/models"
)

// URL parameter names for shareable gallery links.
const (
	ParamTag    = "tag"
	ParamRating = "rating"
	ParamPage   = "page"
)

// State is the gallery view state carried in page URLs.
// Changing the query or the ratings goes back to page 1.
type State struct {
	query   string
	ratings models.RatingSet
	page    int
}

// NewState returns the initial state: no query, default ratings, page 1.
func NewState() *State {
	return &State{ratings: models.DefaultRatings(), page: 1}
}

// ParseState reads a state from URL parameters. Missing or invalid values fall back to
// the initial state.
func ParseState(values url.Values) *State {
	s := NewState()
	s.query = strings.TrimSpace(values.Get(ParamTag))
	if r := values.Get(ParamRating); r != "" {
		s.ratings = models.ParseRatingSet(r)
	}
	if p, err := strconv.Atoi(values.Get(ParamPage)); err == nil && p > 1 {
		s.page = p
	}
	return s
}

func (s *State) Query() string             { return s.query }
func (s *State) Ratings() models.RatingSet { return s.ratings }
func (s *State) Page() int                 { return s.page }

// SetQuery changes the search query and resets to page 1 when it differs.
func (s *State) SetQuery(q string) {
	q = strings.TrimSpace(q)
	if q == s.query {
		return
	}
	s.query = q
	s.page = 1
}

// SetRatings changes the rating set and resets to page 1 when it differs.
func (s *State) SetRatings(ratings models.RatingSet) {
	ratings = models.NewRatingSet(ratings...)
	if ratings.String() == s.ratings.String() {
		return
	}
	s.ratings = ratings
	s.page = 1
}

// SetPage moves to page p; values below 1 mean page 1.
func (s *State) SetPage(p int) {
	if p < 1 {
		p = 1
	}
	s.page = p
}

// Request builds the coordinator request for this state.
func (s *State) Request(pageSize int) PageRequest {
	return PageRequest{PageSize: pageSize, Page: s.page, Query: s.query, Ratings: s.ratings}
}

// Values encodes the state. The rating set is only written when it is not the default,
// and the page only past the first.
func (s *State) Values() url.Values {
	v := url.Values{}
	if s.query != "" {
		v.Set(ParamTag, s.query)
	}
	if !s.ratings.IsDefault() {
		v.Set(ParamRating, s.ratings.String())
	}
	if s.page > 1 {
		v.Set(ParamPage, strconv.Itoa(s.page))
	}
	return v
}

// Encode returns Values as a URL query string.
func (s *State) Encode() string {
	return s.Values().Encode()
}
