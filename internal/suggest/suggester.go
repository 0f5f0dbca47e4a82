package suggest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/query"
	"github.com/hyperjump/booru/internal/storage"
)

// fuzziness is the edit distance used when no tag starts with the typed term.
const fuzziness = 2

// Completion is one autocomplete entry: the tag and the full query text it produces.
type Completion struct {
	Value string     `json:"value"`
	Tag   models.Tag `json:"tag"`
	Fuzzy bool       `json:"fuzzy,omitempty"`
}

// Suggester completes the term being typed in a search box and proposes corrected queries.
type Suggester struct {
	repo   storage.Repository
	index  *TagIndex // optional; without it there are no fuzzy suggestions or corrections
	spell  *SpellChecker
	config *config.GalleryConfig
	logger *zap.Logger
}

// SuggesterOption configures a Suggester.
type SuggesterOption func(*Suggester)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) SuggesterOption {
	return func(s *Suggester) { s.logger = l }
}

// NewSuggester creates a suggester. index may be nil.
func NewSuggester(repo storage.Repository, index *TagIndex, cfg *config.GalleryConfig, opts ...SuggesterOption) *Suggester {
	s := &Suggester{repo: repo, index: index, config: cfg}
	if index != nil {
		s.spell = NewSpellChecker(index)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Complete suggests tags for the last term of raw. Each completion's Value is raw with
// that term replaced by the tag name, keeping its "-" or "~" operator. Repository prefix
// matches come first; when there are none, close tag names from the index are offered.
func (s *Suggester) Complete(ctx context.Context, raw string) ([]Completion, error) {
	head, prefix, term := query.LastToken(raw)
	term = strings.TrimSuffix(term, "*")
	if len([]rune(term)) < s.config.AutocompleteMinChars {
		return []Completion{}, nil
	}

	tags, err := s.repo.SearchTagsByPrefix(ctx, term, s.config.AutocompleteLimit)
	if err != nil {
		return nil, err
	}
	fuzzy := false
	if len(tags) == 0 && s.index != nil {
		tags, err = s.index.Fuzzy(ctx, term, fuzziness, s.config.AutocompleteLimit)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("fuzzy tag lookup failed", zap.String("term", term), zap.Error(err))
			}
			tags = nil
		}
		fuzzy = true
	}

	out := make([]Completion, 0, len(tags))
	for _, tag := range tags {
		out = append(out, Completion{Value: head + prefix + tag.Name, Tag: tag, Fuzzy: fuzzy})
	}
	return out, nil
}

// DidYouMean returns raw with unknown tags replaced by their closest known tag, or ""
// when there is nothing to correct.
func (s *Suggester) DidYouMean(raw string) string {
	if s.spell == nil || strings.TrimSpace(raw) == "" {
		return ""
	}
	corrected, changed := s.spell.Correct(raw)
	if !changed {
		return ""
	}
	return corrected
}

// Add indexes tags, for example after an import saved new posts.
func (s *Suggester) Add(ctx context.Context, tags []models.Tag) error {
	if s.index == nil || len(tags) == 0 {
		return nil
	}
	if err := s.index.Index(ctx, tags...); err != nil {
		return err
	}
	s.spell.Invalidate()
	return nil
}

// Sync rebuilds the tag index from the repository: every tag is (re)indexed with its
// post count and tags no longer in the repository are removed.
func (s *Suggester) Sync(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	tags, err := s.repo.ListTags(ctx, 0, nil)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		if err := s.index.Index(ctx, tags...); err != nil {
			return err
		}
	}
	keep := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		keep[strings.ToLower(tag.Name)] = struct{}{}
	}
	indexed, err := s.index.AllTerms()
	if err != nil {
		return err
	}
	removed := 0
	for _, name := range indexed {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := s.index.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to remove tag %s: %w", name, err)
		}
		removed++
	}
	s.spell.Invalidate()
	if s.logger != nil {
		s.logger.Debug("tag index synced", zap.Int("tags", len(tags)), zap.Int("removed", removed))
	}
	return nil
}
