// Package suggest provides tag autocomplete and "did you mean" corrections for search
// queries, backed by a Bleve index of tag names.
package suggest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/booru/internal/models"
)

// tagDoc is the indexed form of a tag. The document ID is the tag name.
type tagDoc struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Count float64 `json:"count"`
}

var tagFields = []string{"name", "type", "count"}

// openTimeout bounds the wait for the index lock held by another process.
const openTimeout = "2s"

// TagIndex is a Bleve index of tag names.
type TagIndex struct {
	index bleve.Index
}

// NewTagIndex creates or opens a tag index at path. An empty path keeps the index in memory.
// If you change the index mapping in code, remove the index directory to rebuild it.
func NewTagIndex(path string) (*TagIndex, error) {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	// Whole tag names are single terms so prefix and fuzzy queries see "cat_ears", not "cat".
	nameMapping := bleve.NewTextFieldMapping()
	nameMapping.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("name", nameMapping)
	doc.AddFieldMappingsAt("type", bleve.NewKeywordFieldMapping())
	doc.AddFieldMappingsAt("count", bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("tag", doc)
	im.DefaultType = "tag"
	im.DefaultMapping = doc

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create tag index: %w", err)
		}
		return &TagIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.OpenUsing(path, map[string]interface{}{"bolt_timeout": openTimeout})
		if openErr != nil {
			return nil, fmt.Errorf("failed to open tag index: %w", openErr)
		}
		return &TagIndex{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag index: %w", err)
	}
	return &TagIndex{index: index}, nil
}

// Index adds or replaces tags in one batch.
func (t *TagIndex) Index(ctx context.Context, tags ...models.Tag) error {
	batch := t.index.NewBatch()
	for _, tag := range tags {
		name := strings.ToLower(tag.Name)
		if name == "" {
			continue
		}
		if err := batch.Index(name, tagDoc{Name: name, Type: string(tag.Type), Count: float64(tag.Count)}); err != nil {
			return fmt.Errorf("failed to index tag %s: %w", name, err)
		}
	}
	if err := t.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index tags: %w", err)
	}
	return nil
}

// Delete removes a tag by name.
func (t *TagIndex) Delete(ctx context.Context, name string) error {
	return t.index.Delete(strings.ToLower(name))
}

// Prefix returns up to limit tags starting with prefix, most used first.
func (t *TagIndex) Prefix(ctx context.Context, prefix string, limit int) ([]models.Tag, error) {
	q := bleve.NewPrefixQuery(strings.ToLower(prefix))
	q.SetField("name")
	return t.search(ctx, q, limit, []string{"-count", "name"})
}

// Fuzzy returns up to limit tags within fuzziness edits of term, closest first.
func (t *TagIndex) Fuzzy(ctx context.Context, term string, fuzziness, limit int) ([]models.Tag, error) {
	q := bleve.NewFuzzyQuery(strings.ToLower(term))
	q.SetField("name")
	q.SetFuzziness(fuzziness)
	return t.search(ctx, q, limit, []string{"-_score", "-count", "name"})
}

func (t *TagIndex) search(ctx context.Context, q blevequery.Query, limit int, sortBy []string) ([]models.Tag, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = tagFields
	req.SortBy(sortBy)
	results, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tag search failed: %w", err)
	}
	tags := make([]models.Tag, 0, len(results.Hits))
	for _, hit := range results.Hits {
		tag := models.Tag{Name: hit.ID, Type: models.TagGeneral}
		if v, ok := hit.Fields["type"].(string); ok {
			tag.Type = models.ParseTagType(v)
		}
		if v, ok := hit.Fields["count"].(float64); ok {
			tag.Count = int(v)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// AllTerms returns every indexed tag name.
func (t *TagIndex) AllTerms() ([]string, error) {
	const pageSize = 1000
	terms := make([]string, 0)
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), pageSize, from, false)
		req.SortBy([]string{"_id"})
		results, err := t.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("failed to list tags: %w", err)
		}
		for _, hit := range results.Hits {
			terms = append(terms, hit.ID)
		}
		if len(results.Hits) < pageSize {
			return terms, nil
		}
	}
}

// TermFrequency returns the post count stored for a tag, or 0 if it is not indexed.
func (t *TagIndex) TermFrequency(term string) (int, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{strings.ToLower(term)}))
	req.Size = 1
	req.Fields = []string{"count"}
	results, err := t.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to look up tag %s: %w", term, err)
	}
	if len(results.Hits) == 0 {
		return 0, nil
	}
	count, _ := results.Hits[0].Fields["count"].(float64)
	return int(count), nil
}

// DocCount returns the number of indexed tags.
func (t *TagIndex) DocCount() (uint64, error) {
	return t.index.DocCount()
}

// Close closes the index.
func (t *TagIndex) Close() error {
	return t.index.Close()
}
