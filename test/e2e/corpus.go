// Package e2e provides end-to-end tests with a generated post corpus and tag queries.
package e2e

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/booru/internal/importer"
	"github.com/hyperjump/booru/internal/models"
)

// CorpusPost is a post in the E2E corpus.
type CorpusPost struct {
	ID        string
	MediaURL  string
	SourceURL string
	Rating    models.Rating
	Tags      []string // "name" or "type:name"
}

// HasTag reports whether the post carries the tag name (type prefix ignored).
func (p CorpusPost) HasTag(name string) bool {
	for _, t := range p.Tags {
		if t == name || strings.HasSuffix(t, ":"+name) {
			return true
		}
	}
	return false
}

// QueryTestCase is a query together with a predicate that selects the posts it must
// return. Expected IDs are derived from the predicate, not from the query language.
type QueryTestCase struct {
	Description string
	Query       string
	Ratings     models.RatingSet
	Match       func(CorpusPost) bool
}

// Corpus holds posts and query test cases for E2E tests.
type Corpus struct {
	Posts     []CorpusPost
	TestCases []QueryTestCase
}

var (
	colors  = []string{"red", "green", "blue", "black", "white"}
	animals = []string{"cat", "dog", "fox", "owl"}
)

// BuildCorpus returns n posts whose tags cycle through colors, animals, artists and a few
// flags, so every test case has a predictable answer.
func BuildCorpus(n int) *Corpus {
	posts := make([]CorpusPost, n)
	for i := range posts {
		p := CorpusPost{
			ID:        fmt.Sprintf("post-%03d", i),
			MediaURL:  fmt.Sprintf("https://cdn.example.com/img/%03d.png", i),
			SourceURL: fmt.Sprintf("https://gallery.example.com/works/%d", i),
			Rating:    models.RatingSafe,
			Tags: []string{
				colors[i%len(colors)],
				animals[i%len(animals)],
				fmt.Sprintf("artist:artist_%02d", i%12),
			},
		}
		if i%10 == 9 {
			p.MediaURL = fmt.Sprintf("https://cdn.example.com/vid/%03d.webm", i)
		}
		switch i % 7 {
		case 0:
			p.Rating = models.RatingExplicit
		case 3:
			p.Rating = models.RatingQuestionable
		}
		if i%3 == 0 {
			p.Tags = append(p.Tags, "solo")
		}
		if i%2 == 0 {
			p.Tags = append(p.Tags, "highres")
		}
		posts[i] = p
	}
	return &Corpus{Posts: posts, TestCases: buildQueryTestCases()}
}

func buildQueryTestCases() []QueryTestCase {
	safe := models.DefaultRatings()
	all := models.NewRatingSet(models.AllRatings...)
	has := func(name string) func(CorpusPost) bool {
		return func(p CorpusPost) bool { return p.HasTag(name) }
	}
	return []QueryTestCase{
		{"no query lists every visible post", "", safe, func(CorpusPost) bool { return true }},
		{"single tag", "cat", safe, has("cat")},
		{"tag with exclusion", "cat -red", safe, func(p CorpusPost) bool { return p.HasTag("cat") && !p.HasTag("red") }},
		{"either tag", "~fox ~owl", safe, func(p CorpusPost) bool { return p.HasTag("fox") || p.HasTag("owl") }},
		{"double exclusion", "-cat -dog", safe, func(p CorpusPost) bool { return !p.HasTag("cat") && !p.HasTag("dog") }},
		{"wildcard artist", "artist_1*", all, func(p CorpusPost) bool { return p.HasTag("artist_10") || p.HasTag("artist_11") }},
		{"wildcard flag", "hi*", safe, has("highres")},
		{"mixed and not", "highres blue -solo", models.NewRatingSet(models.RatingSafe, models.RatingQuestionable),
			func(p CorpusPost) bool { return p.HasTag("highres") && p.HasTag("blue") && !p.HasTag("solo") }},
		{"and with or", "cat ~red ~blue", models.NewRatingSet(models.RatingExplicit),
			func(p CorpusPost) bool { return p.HasTag("cat") && (p.HasTag("red") || p.HasTag("blue")) }},
		{"source url fallback", "gallery.example", safe, func(CorpusPost) bool { return true }},
		{"case insensitive", "CAT -RED", safe, func(p CorpusPost) bool { return p.HasTag("cat") && !p.HasTag("red") }},
		{"no match", "unicorn", all, func(CorpusPost) bool { return false }},
	}
}

// Expected returns the sorted IDs of posts that tc must return.
func (c *Corpus) Expected(tc QueryTestCase) []string {
	ids := make([]string, 0)
	for _, p := range c.Posts {
		if tc.Ratings.Contains(p.Rating) && tc.Match(p) {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Rows converts the corpus to manifest rows.
func (c *Corpus) Rows() []importer.Row {
	rows := make([]importer.Row, len(c.Posts))
	for i, p := range c.Posts {
		rows[i] = importer.Row{
			ID:        p.ID,
			MediaURL:  p.MediaURL,
			SourceURL: p.SourceURL,
			Rating:    string(p.Rating),
			Tags:      strings.Join(p.Tags, " "),
		}
	}
	return rows
}
