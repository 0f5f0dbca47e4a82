package query

import (
	"strings"

	"github.com/hyperjump/booru/internal/models"
)

// FilterPosts returns the posts matching q, in their original order.
// A nil q returns posts unchanged.
//
// AND terms match a tag, or fall back to a substring of the source URL (with a
// trailing "*" removed). NOT and OR terms only look at tags.
func FilterPosts(posts []*models.Post, q *ParsedQuery) []*models.Post {
	if q == nil {
		return posts
	}
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if q.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// Matches reports whether a single post passes the AND, NOT and OR checks of q.
func (q *ParsedQuery) Matches(p *models.Post) bool {
	if q == nil {
		return true
	}
	tags := lowerTagNames(p)
	source := strings.ToLower(p.SourceURL)

	for _, term := range q.AndTerms {
		if anyTagMatches(term, tags) {
			continue
		}
		if strings.Contains(source, strings.TrimSuffix(term, wildcard)) {
			continue
		}
		return false
	}
	for _, term := range q.NotTerms {
		if anyTagMatches(term, tags) {
			return false
		}
	}
	if len(q.OrTerms) == 0 {
		return true
	}
	for _, term := range q.OrTerms {
		if anyTagMatches(term, tags) {
			return true
		}
	}
	return false
}

func lowerTagNames(p *models.Post) []string {
	names := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		names[i] = strings.ToLower(t.Name)
	}
	return names
}
