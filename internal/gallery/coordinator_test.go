package gallery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/storage"
)

// fakeRepo serves posts from memory and records every listing request.
type fakeRepo struct {
	storage.Unconfigured
	posts []*models.Post
	err   error
	calls []storage.ListOptions
}

func (f *fakeRepo) ListPosts(_ context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	var rows []*models.Post
	for _, p := range f.posts {
		if opts.Ratings.Contains(p.Rating) {
			rows = append(rows, p)
		}
	}
	count := len(rows)
	if opts.Paginated() {
		rows = slicePage(rows, opts.Offset, opts.Limit)
	}
	return &storage.ListResult{Rows: rows, ExactCount: count}, nil
}

func makePosts(n int, tagFor func(i int) string) []*models.Post {
	posts := make([]*models.Post, n)
	for i := range posts {
		posts[i] = &models.Post{
			ID:     fmt.Sprintf("p%d", i),
			Rating: models.RatingSafe,
			Tags:   []models.Tag{{Name: tagFor(i)}},
		}
	}
	return posts
}

func newCoordinator(repo storage.Repository) *Coordinator {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewCoordinator(repo, &cfg.Gallery)
}

func TestFetchPage_FastPathRequestsRange(t *testing.T) {
	repo := &fakeRepo{posts: makePosts(120, func(int) string { return "cat" })}
	c := newCoordinator(repo)

	page, err := c.FetchPage(context.Background(), PageRequest{
		PageSize: 50, Page: 3, Ratings: models.DefaultRatings(),
	})
	require.NoError(t, err)
	require.Len(t, repo.calls, 1)
	assert.Equal(t, 100, repo.calls[0].Offset)
	assert.Equal(t, 50, repo.calls[0].Limit)
	assert.Equal(t, models.DefaultRatings(), repo.calls[0].Ratings)

	assert.False(t, page.Filtered)
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, "p100", page.Items[0].ID)
}

func TestFetchPage_SlowPathFiltersAndSlicesLocally(t *testing.T) {
	repo := &fakeRepo{posts: makePosts(200, func(i int) string {
		if i%2 == 0 {
			return "cat"
		}
		return "dog"
	})}
	c := newCoordinator(repo)

	page, err := c.FetchPage(context.Background(), PageRequest{
		PageSize: 50, Page: 3, Query: "cat", Ratings: models.DefaultRatings(),
	})
	require.NoError(t, err)
	require.Len(t, repo.calls, 1)
	assert.Zero(t, repo.calls[0].Offset)
	assert.Zero(t, repo.calls[0].Limit)

	// 100 cats: page 3 starts at offset 100, past the end.
	assert.True(t, page.Filtered)
	assert.Equal(t, 100, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	page, err = c.FetchPage(context.Background(), PageRequest{
		PageSize: 50, Page: 2, Query: "cat", Ratings: models.DefaultRatings(),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 50)
	assert.Equal(t, "p100", page.Items[0].ID)
	assert.Equal(t, "p198", page.Items[49].ID)
}

func TestFetchPage_HugePageIsPastTheEnd(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		pageSize int
		query    string
	}{
		{"fast path, offset overflows", 200000000000000000, 50, ""},
		{"slow path, offset overflows", 200000000000000000, 50, "cat"},
		{"fast path, max page", math.MaxInt, 50, ""},
		{"slow path, max page", math.MaxInt, 50, "cat"},
		{"fast path, offset plus size overflows", math.MaxInt/100 + 1, 100, ""},
		{"slow path, offset plus size overflows", math.MaxInt/100 + 1, 100, "cat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{posts: makePosts(120, func(int) string { return "cat" })}
			c := newCoordinator(repo)

			page, err := c.FetchPage(context.Background(), PageRequest{
				PageSize: tt.pageSize, Page: tt.page, Query: tt.query, Ratings: models.DefaultRatings(),
			})
			require.NoError(t, err)
			assert.NotNil(t, page.Items)
			assert.Empty(t, page.Items)
			assert.Equal(t, 120, page.Total)
			assert.Equal(t, tt.page, page.Page)
			require.Len(t, repo.calls, 1)
			assert.GreaterOrEqual(t, repo.calls[0].Offset, 0)
		})
	}
}

func TestPageOffset(t *testing.T) {
	tests := []struct {
		page, size, want int
	}{
		{1, 50, 0},
		{3, 50, 100},
		{0, 50, 0},
		{5, 0, 0},
		{math.MaxInt/50 + 1, 50, (math.MaxInt / 50) * 50},
		{math.MaxInt/50 + 2, 50, math.MaxInt},
		{math.MaxInt, 2, math.MaxInt},
	}
	for _, tt := range tests {
		if got := pageOffset(tt.page, tt.size); got != tt.want {
			t.Errorf("pageOffset(%d, %d) = %d, want %d", tt.page, tt.size, got, tt.want)
		}
	}
}

func TestSlicePage_OutOfRange(t *testing.T) {
	posts := makePosts(10, func(int) string { return "cat" })
	assert.Empty(t, slicePage(posts, -1, 5))
	assert.Empty(t, slicePage(posts, 10, 5))
	assert.Empty(t, slicePage(posts, math.MaxInt, 5))
	assert.Len(t, slicePage(posts, 8, math.MaxInt), 2)
	assert.Len(t, slicePage(posts, 2, 3), 3)
}

func TestFetchPage_SlowPathKeepsRepositoryOrder(t *testing.T) {
	repo := &fakeRepo{posts: []*models.Post{
		{ID: "new", Rating: models.RatingSafe, Tags: []models.Tag{{Name: "cat"}}},
		{ID: "mid", Rating: models.RatingSafe, Tags: []models.Tag{{Name: "dog"}}},
		{ID: "old", Rating: models.RatingSafe, Tags: []models.Tag{{Name: "cat"}}},
	}}
	page, err := newCoordinator(repo).FetchPage(context.Background(), PageRequest{Query: "~cat ~bird"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "new", page.Items[0].ID)
	assert.Equal(t, "old", page.Items[1].ID)
}

func TestFetchPage_Normalizes(t *testing.T) {
	repo := &fakeRepo{}
	c := newCoordinator(repo)

	page, err := c.FetchPage(context.Background(), PageRequest{Page: -4, PageSize: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.PageSize)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, []string{"safe"}, page.Ratings)
	assert.Equal(t, 0, repo.calls[0].Offset)
	assert.Equal(t, models.DefaultRatings(), repo.calls[0].Ratings)

	_, err = c.FetchPage(context.Background(), PageRequest{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, repo.calls[1].Limit)
}

func TestFetchPage_PassesRatingsThrough(t *testing.T) {
	repo := &fakeRepo{posts: []*models.Post{
		{ID: "s", Rating: models.RatingSafe},
		{ID: "e", Rating: models.RatingExplicit},
	}}
	ratings := models.NewRatingSet(models.RatingExplicit)
	page, err := newCoordinator(repo).FetchPage(context.Background(), PageRequest{Ratings: ratings})
	require.NoError(t, err)
	assert.Equal(t, ratings, repo.calls[0].Ratings)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "e", page.Items[0].ID)
}

func TestFetchPage_PropagatesRepositoryErrors(t *testing.T) {
	cause := &storage.RepositoryError{Op: "list posts", Err: errors.New("connection refused")}
	for _, q := range []string{"", "cat"} {
		repo := &fakeRepo{err: cause}
		page, err := newCoordinator(repo).FetchPage(context.Background(), PageRequest{Query: q})
		assert.Nil(t, page)
		assert.Same(t, cause, err, "query %q", q)
		assert.Len(t, repo.calls, 1, "no retry")
	}

	_, err := newCoordinator(storage.Unconfigured{}).FetchPage(context.Background(), PageRequest{})
	assert.ErrorIs(t, err, storage.ErrConfiguration)
}
