package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/booru/internal/models"
)

// tagBatchSize bounds the number of post IDs per tag lookup so the query stays
// under SQLite's bound-parameter limit.
const tagBatchSize = 500

// SQLiteStorage implements Repository using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		media_url TEXT NOT NULL,
		preview_url TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		rating TEXT NOT NULL DEFAULT 'safe',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_posts_rating_created_at ON posts(rating, created_at);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL DEFAULT 'general'
	);

	CREATE TABLE IF NOT EXISTS post_tags (
		post_id TEXT NOT NULL,
		tag_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (post_id, tag_id),
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_post_tags_tag_id ON post_tags(tag_id);
	`
	_, err := db.Exec(schema)
	return err
}

// ratingClause returns "rating IN (?,...)" and its arguments, or "1=1" for an empty set.
func ratingClause(column string, ratings models.RatingSet) (string, []interface{}) {
	if len(ratings) == 0 {
		return "1=1", nil
	}
	args := make([]interface{}, len(ratings))
	for i, r := range ratings {
		args[i] = string(r)
	}
	return column + " IN (" + placeholders(len(ratings)) + ")", args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ListPosts returns posts newest first, with the exact count of the rating-filtered set.
// The count and the rows are read in one transaction so they agree with each other.
func (s *SQLiteStorage) ListPosts(ctx context.Context, opts ListOptions) (*ListResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, wrap("list posts", err)
	}
	defer tx.Rollback()

	where, args := ratingClause("rating", opts.Ratings)

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE `+where, args...).Scan(&count); err != nil {
		return nil, wrap("count posts", err)
	}

	q := `SELECT id, media_url, preview_url, source_url, rating, created_at
		FROM posts WHERE ` + where + ` ORDER BY created_at DESC, rowid DESC`
	if opts.Paginated() {
		offset := opts.Offset
		if offset < 0 {
			offset = 0
		}
		q += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, offset)
	}
	posts, err := queryPosts(ctx, tx, q, args...)
	if err != nil {
		return nil, wrap("list posts", err)
	}
	if err := attachTags(ctx, tx, posts); err != nil {
		return nil, wrap("list posts", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("list posts", err)
	}
	return &ListResult{Rows: posts, ExactCount: count}, nil
}

func queryPosts(ctx context.Context, db querier, q string, args ...interface{}) ([]*models.Post, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]*models.Post, 0)
	for rows.Next() {
		var p models.Post
		var rating string
		if err := rows.Scan(&p.ID, &p.MediaURL, &p.PreviewURL, &p.SourceURL, &rating, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Rating = models.Rating(rating)
		p.Tags = []models.Tag{}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}

// attachTags loads tags for posts in batches. Rows are read fully before the next
// query runs since the pool holds a single connection.
func attachTags(ctx context.Context, db querier, posts []*models.Post) error {
	byID := make(map[string]*models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	for start := 0; start < len(posts); start += tagBatchSize {
		end := start + tagBatchSize
		if end > len(posts) {
			end = len(posts)
		}
		args := make([]interface{}, 0, end-start)
		for _, p := range posts[start:end] {
			args = append(args, p.ID)
		}
		rows, err := db.QueryContext(ctx,
			`SELECT pt.post_id, t.id, t.name, t.type
			 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
			 WHERE pt.post_id IN (`+placeholders(len(args))+`)
			 ORDER BY pt.post_id, pt.position`, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var postID, tagType string
			var tag models.Tag
			if err := rows.Scan(&postID, &tag.ID, &tag.Name, &tagType); err != nil {
				rows.Close()
				return err
			}
			tag.Type = models.TagType(tagType)
			if p, ok := byID[postID]; ok {
				p.Tags = append(p.Tags, tag)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// GetPost returns a post by ID.
func (s *SQLiteStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	posts, err := queryPosts(ctx, s.db,
		`SELECT id, media_url, preview_url, source_url, rating, created_at
		 FROM posts WHERE id = ?`, id)
	if err != nil {
		return nil, wrap("get post", err)
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	if err := attachTags(ctx, s.db, posts); err != nil {
		return nil, wrap("get post", err)
	}
	return posts[0], nil
}

// SavePost inserts a post, or replaces an existing post with the same ID while keeping
// its creation time. An empty ID gets a fresh UUID; an empty rating means safe.
func (s *SQLiteStorage) SavePost(ctx context.Context, input *models.PostInput) (*models.Post, error) {
	if strings.TrimSpace(input.MediaURL) == "" {
		return nil, fmt.Errorf("media_url is required")
	}
	rating := input.Rating
	if rating == "" {
		rating = models.RatingSafe
	}
	if !rating.Valid() {
		return nil, fmt.Errorf("unknown rating %q", rating)
	}
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("save post", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, media_url, preview_url, source_url, rating, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			media_url = excluded.media_url,
			preview_url = excluded.preview_url,
			source_url = excluded.source_url,
			rating = excluded.rating`,
		id, input.MediaURL, input.PreviewURL, input.SourceURL, string(rating), time.Now().UTC(),
	)
	if err != nil {
		return nil, wrap("save post", err)
	}
	if err := replaceTags(ctx, tx, id, input.Tags); err != nil {
		return nil, wrap("save post", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("save post", err)
	}
	return s.GetPost(ctx, id)
}

// replaceTags sets the post's tags to tags, creating unknown tags.
func replaceTags(ctx context.Context, tx *sql.Tx, postID string, tags []models.Tag) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(tags))
	for i, tag := range tags {
		name := strings.ToLower(strings.TrimSpace(tag.Name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tagType := tag.Type
		if tagType == "" {
			tagType = models.TagGeneral
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name, type) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
			name, string(tagType)); err != nil {
			return err
		}
		var tagID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_tags (post_id, tag_id, position) VALUES (?, ?, ?)`,
			postID, tagID, i); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePost applies the non-nil fields of update. It returns ErrNoRowsUpdated when no
// post with id exists.
func (s *SQLiteStorage) UpdatePost(ctx context.Context, id string, update *models.PostUpdate) (*models.Post, error) {
	if update.Rating != nil && !update.Rating.Valid() {
		return nil, fmt.Errorf("unknown rating %q", *update.Rating)
	}
	var sets []string
	var args []interface{}
	if update.MediaURL != nil {
		sets = append(sets, "media_url = ?")
		args = append(args, *update.MediaURL)
	}
	if update.PreviewURL != nil {
		sets = append(sets, "preview_url = ?")
		args = append(args, *update.PreviewURL)
	}
	if update.SourceURL != nil {
		sets = append(sets, "source_url = ?")
		args = append(args, *update.SourceURL)
	}
	if update.Rating != nil {
		sets = append(sets, "rating = ?")
		args = append(args, string(*update.Rating))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("update post", err)
	}
	defer tx.Rollback()

	var n int64
	if len(sets) > 0 {
		args = append(args, id)
		result, err := tx.ExecContext(ctx, `UPDATE posts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, wrap("update post", err)
		}
		n, _ = result.RowsAffected()
	} else if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, id).Scan(&n); err != nil {
		return nil, wrap("update post", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("post %s: %w", id, ErrNoRowsUpdated)
	}
	if update.Tags != nil {
		if err := replaceTags(ctx, tx, id, update.Tags); err != nil {
			return nil, wrap("update post", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("update post", err)
	}
	return s.GetPost(ctx, id)
}

// DeletePost removes a post by ID. Its tag links are removed by cascade; the tags stay.
func (s *SQLiteStorage) DeletePost(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return wrap("delete post", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("post %s: %w", id, ErrNoRowsUpdated)
	}
	return nil
}

// ListTags returns up to limit tags ordered by post count, then name. When ratings is
// non-nil only tags used by posts in those ratings are listed, counted within the set.
func (s *SQLiteStorage) ListTags(ctx context.Context, limit int, ratings models.RatingSet) ([]models.Tag, error) {
	var q string
	var args []interface{}
	if ratings == nil {
		q = `SELECT t.id, t.name, t.type, COUNT(pt.post_id) AS n
			FROM tags t LEFT JOIN post_tags pt ON pt.tag_id = t.id
			GROUP BY t.id ORDER BY n DESC, t.name`
	} else {
		where, rargs := ratingClause("p.rating", ratings)
		q = `SELECT t.id, t.name, t.type, COUNT(*) AS n
			FROM tags t
			JOIN post_tags pt ON pt.tag_id = t.id
			JOIN posts p ON p.id = pt.post_id
			WHERE ` + where + `
			GROUP BY t.id ORDER BY n DESC, t.name`
		args = rargs
	}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	tags, err := s.queryTags(ctx, q, args...)
	return tags, wrap("list tags", err)
}

// SearchTagsByPrefix returns up to limit tags whose name starts with prefix, ignoring case.
// Prefixes shorter than MinPrefixLength return no tags.
func (s *SQLiteStorage) SearchTagsByPrefix(ctx context.Context, prefix string, limit int) ([]models.Tag, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if len([]rune(prefix)) < MinPrefixLength {
		return []models.Tag{}, nil
	}
	q := `SELECT t.id, t.name, t.type, (SELECT COUNT(*) FROM post_tags pt WHERE pt.tag_id = t.id) AS n
		FROM tags t WHERE lower(t.name) LIKE ? ESCAPE '\' ORDER BY n DESC, t.name`
	args := []interface{}{escapeLike(prefix) + "%"}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	tags, err := s.queryTags(ctx, q, args...)
	return tags, wrap("search tags", err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *SQLiteStorage) queryTags(ctx context.Context, q string, args ...interface{}) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := make([]models.Tag, 0)
	for rows.Next() {
		var tag models.Tag
		var tagType string
		if err := rows.Scan(&tag.ID, &tag.Name, &tagType, &tag.Count); err != nil {
			return nil, err
		}
		tag.Type = models.TagType(tagType)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// CountPosts returns the total number of posts.
func (s *SQLiteStorage) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, wrap("count posts", err)
}

// CountTags returns the total number of tags.
func (s *SQLiteStorage) CountTags(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&count)
	return count, wrap("count tags", err)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
