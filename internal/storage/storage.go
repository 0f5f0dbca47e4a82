// Package storage defines the posts repository the gallery reads from.
package storage

import (
	"context"

	"github.com/hyperjump/booru/internal/models"
)

// ListOptions selects a page of posts. Limit 0 returns every matching post.
type ListOptions struct {
	Ratings models.RatingSet
	Offset  int
	Limit   int
}

// Paginated reports whether the store should apply offset and limit.
func (o ListOptions) Paginated() bool {
	return o.Limit > 0
}

// ListResult holds the rows of a listing and the exact count of the rating-filtered set,
// independent of Offset and Limit.
type ListResult struct {
	Rows       []*models.Post
	ExactCount int
}

// Repository is the posts store. Implementations return ErrConfiguration when
// unavailable and wrap store failures in *RepositoryError.
type Repository interface {
	// Posts, newest first.
	ListPosts(ctx context.Context, opts ListOptions) (*ListResult, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// SavePost creates the post, or replaces it when input.ID already exists.
	SavePost(ctx context.Context, input *models.PostInput) (*models.Post, error)
	UpdatePost(ctx context.Context, id string, update *models.PostUpdate) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error

	// Tags. A nil ratings set lists every tag.
	ListTags(ctx context.Context, limit int, ratings models.RatingSet) ([]models.Tag, error)
	SearchTagsByPrefix(ctx context.Context, prefix string, limit int) ([]models.Tag, error)

	// Stats
	CountPosts(ctx context.Context) (int64, error)
	CountTags(ctx context.Context) (int64, error)

	Close() error
}

// MinPrefixLength is the shortest prefix SearchTagsByPrefix answers.
const MinPrefixLength = 2
