package storage

import (
	"context"

	"github.com/hyperjump/booru/internal/models"
)

// Unconfigured is the repository used when no store is set up.
// Every call fails with ErrConfiguration.
type Unconfigured struct{}

var _ Repository = Unconfigured{}

func (Unconfigured) ListPosts(context.Context, ListOptions) (*ListResult, error) {
	return nil, ErrConfiguration
}

func (Unconfigured) GetPost(context.Context, string) (*models.Post, error) {
	return nil, ErrConfiguration
}

func (Unconfigured) SavePost(context.Context, *models.PostInput) (*models.Post, error) {
	return nil, ErrConfiguration
}

func (Unconfigured) UpdatePost(context.Context, string, *models.PostUpdate) (*models.Post, error) {
	return nil, ErrConfiguration
}

func (Unconfigured) DeletePost(context.Context, string) error {
	return ErrConfiguration
}

func (Unconfigured) ListTags(context.Context, int, models.RatingSet) ([]models.Tag, error) {
	return nil, ErrConfiguration
}

func (Unconfigured) SearchTagsByPrefix(context.Context, string, int) ([]models.Tag, error) {
	return nil, ErrConfiguration
}

func (Unconfigured) CountPosts(context.Context) (int64, error) {
	return 0, ErrConfiguration
}

func (Unconfigured) CountTags(context.Context) (int64, error) {
	return 0, ErrConfiguration
}

func (Unconfigured) Close() error {
	return nil
}
