// Package gallery pages posts for the gallery grid, choosing between repository-side
// paging and in-memory filtering depending on the search query.
package gallery

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/query"
	"github.com/hyperjump/booru/internal/storage"
)

// PageRequest asks for one page of the gallery. Ratings must already be resolved for
// the caller's privileges; an empty set means the configured default.
type PageRequest struct {
	PageSize int
	Page     int
	Query    string
	Ratings  models.RatingSet
}

// Coordinator fetches gallery pages from a repository.
type Coordinator struct {
	repo   storage.Repository
	config *config.GalleryConfig
	logger *zap.Logger // optional; when set, logs debug events
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets a logger for debug output (path taken, counts, timings).
func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator over repo.
func NewCoordinator(repo storage.Repository, cfg *config.GalleryConfig, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{repo: repo, config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage returns one page of posts.
//
// Without a query the repository pages server-side and its exact count is the total.
// With a query the full rating-filtered set is fetched, filtered in memory and sliced,
// so the total is the number of matches. An offset past the end yields no items.
// Repository errors are returned as is.
func (c *Coordinator) FetchPage(ctx context.Context, req PageRequest) (*models.Page, error) {
	start := time.Now()
	req = c.normalize(req)
	offset := pageOffset(req.Page, req.PageSize)

	q := query.Parse(req.Query)

	var (
		items []*models.Post
		total int
	)
	if q == nil {
		result, err := c.repo.ListPosts(ctx, storage.ListOptions{
			Ratings: req.Ratings,
			Offset:  offset,
			Limit:   req.PageSize,
		})
		if err != nil {
			return nil, err
		}
		items, total = result.Rows, result.ExactCount
	} else {
		result, err := c.repo.ListPosts(ctx, storage.ListOptions{Ratings: req.Ratings})
		if err != nil {
			return nil, err
		}
		filtered := query.FilterPosts(result.Rows, q)
		items, total = slicePage(filtered, offset, req.PageSize), len(filtered)
	}
	if items == nil {
		items = []*models.Post{}
	}

	page := &models.Page{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: models.TotalPages(total, req.PageSize),
		Query:      req.Query,
		Ratings:    req.Ratings.Strings(),
		Filtered:   q != nil,
		QueryTime:  time.Since(start).Milliseconds(),
	}
	if c.logger != nil {
		c.logger.Debug("fetched page",
			zap.Bool("filtered", page.Filtered),
			zap.Int("page", page.Page),
			zap.Int("items", len(page.Items)),
			zap.Int("total", page.Total),
			zap.String("ratings", req.Ratings.String()),
			zap.Int64("query_time_ms", page.QueryTime))
	}
	return page, nil
}

func (c *Coordinator) normalize(req PageRequest) PageRequest {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = c.config.PageSize
	}
	if c.config.MaxPageSize > 0 && req.PageSize > c.config.MaxPageSize {
		req.PageSize = c.config.MaxPageSize
	}
	if len(req.Ratings) == 0 {
		req.Ratings = c.config.Ratings()
	}
	return req
}

// pageOffset returns the offset of the first item on page. An offset that does not fit
// in an int is clamped to math.MaxInt, which is past the end of any result.
func pageOffset(page, size int) int {
	if page < 1 || size <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}

// slicePage returns posts[offset:offset+size], clamped to the slice bounds.
func slicePage(posts []*models.Post, offset, size int) []*models.Post {
	if offset < 0 || offset >= len(posts) {
		return []*models.Post{}
	}
	end := len(posts)
	if size < end-offset {
		end = offset + size
	}
	return posts[offset:end]
}
