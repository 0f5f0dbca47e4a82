package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/gallery"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/query"
	"github.com/hyperjump/booru/internal/storage"
	"github.com/hyperjump/booru/internal/suggest"
)

func syntheticPosts(n int) []*models.Post {
	posts := make([]*models.Post, n)
	for i := range posts {
		posts[i] = &models.Post{
			ID:        fmt.Sprint(i),
			SourceURL: fmt.Sprintf("https://source.example.com/%d", i),
			Tags: []models.Tag{
				{Name: fmt.Sprintf("color_%d", i%7)},
				{Name: fmt.Sprintf("animal_%d", i%11)},
				{Name: fmt.Sprintf("artist_%d", i%97)},
			},
		}
	}
	return posts
}

func BenchmarkParse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = query.Parse("cat_ears -scary ~blue ~red hatsune* source.example")
	}
}

func BenchmarkFilterPosts(b *testing.B) {
	posts := syntheticPosts(10000)
	q := query.Parse("color_3 -animal_5 ~artist_1* ~artist_2*")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = query.FilterPosts(posts, q)
	}
}

func BenchmarkEditDistance(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = suggest.EditDistance("hatsune_mikku", "hatsune_miku")
	}
}

func BenchmarkFetchPage_SlowPath(b *testing.B) {
	store, err := storage.NewSQLiteStorage(filepath.Join(b.TempDir(), "posts.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	for _, p := range syntheticPosts(1000) {
		if _, err := store.SavePost(ctx, &models.PostInput{ID: p.ID, MediaURL: p.ID + ".png", SourceURL: p.SourceURL, Tags: p.Tags}); err != nil {
			b.Fatal(err)
		}
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	coord := gallery.NewCoordinator(store, &cfg.Gallery)
	req := gallery.PageRequest{Query: "color_3 -animal_5", Page: 2}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := coord.FetchPage(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
