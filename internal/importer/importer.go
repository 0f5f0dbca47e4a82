package importer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/storage"
)

// postNamespace derives stable post IDs from media URLs, so re-importing a manifest
// updates its posts instead of duplicating them.
var postNamespace = uuid.MustParse("8f0c6f8e-5b0d-4a47-9d59-3c1f0e6b7a21")

// TagSink receives the tags of imported posts, e.g. the autocomplete index.
type TagSink interface {
	Add(ctx context.Context, tags []models.Tag) error
}

// Result summarizes an import.
type Result struct {
	Files    int      `json:"files"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

func (r *Result) merge(other *Result) {
	r.Files += other.Files
	r.Imported += other.Imported
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
}

// Importer saves manifest rows as posts.
type Importer struct {
	repo       storage.Repository
	tags       TagSink // optional
	extensions []string
	logger     *zap.Logger // optional; when set, logs debug events
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithLogger sets a logger for import progress.
func WithLogger(l *zap.Logger) ImporterOption {
	return func(i *Importer) { i.logger = l }
}

// WithTagSink forwards the tags of every imported post to sink.
func WithTagSink(sink TagSink) ImporterOption {
	return func(i *Importer) { i.tags = sink }
}

// NewImporter creates an importer. extensions filters directory imports (empty = all
// supported types).
func NewImporter(repo storage.Repository, extensions []string, opts ...ImporterOption) *Importer {
	i := &Importer{repo: repo, extensions: extensions}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ToPostInput converts a manifest row. Rows without a media URL or with an unknown
// rating are rejected.
func ToPostInput(row Row) (*models.PostInput, error) {
	mediaURL := strings.TrimSpace(row.MediaURL)
	if mediaURL == "" {
		return nil, fmt.Errorf("missing media_url")
	}
	rating := models.RatingSafe
	if strings.TrimSpace(row.Rating) != "" {
		r, err := models.ParseRating(row.Rating)
		if err != nil {
			return nil, err
		}
		rating = r
	}
	id := strings.TrimSpace(row.ID)
	if id == "" {
		id = uuid.NewSHA1(postNamespace, []byte(mediaURL)).String()
	}
	return &models.PostInput{
		ID:         id,
		MediaURL:   mediaURL,
		PreviewURL: strings.TrimSpace(row.PreviewURL),
		SourceURL:  strings.TrimSpace(row.SourceURL),
		Rating:     rating,
		Tags:       models.ParseTagList(row.Tags),
	}, nil
}

// ImportFile saves every valid row of the manifest at path. Invalid rows are skipped
// and reported in the result; repository failures abort the import.
func (i *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	rows, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	res := &Result{Files: 1}
	var tags []models.Tag
	for n, row := range rows {
		input, err := ToPostInput(row)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("%s row %d: %v", filepath.Base(path), n+1, err))
			if i.logger != nil {
				i.logger.Warn("skipping manifest row", zap.String("path", path), zap.Int("row", n+1), zap.Error(err))
			}
			continue
		}
		if _, err := i.repo.SavePost(ctx, input); err != nil {
			return res, fmt.Errorf("failed to save %s row %d: %w", filepath.Base(path), n+1, err)
		}
		res.Imported++
		tags = append(tags, input.Tags...)
	}
	if i.tags != nil && len(tags) > 0 {
		if err := i.tags.Add(ctx, tags); err != nil && i.logger != nil {
			i.logger.Warn("failed to index imported tags", zap.String("path", path), zap.Error(err))
		}
	}
	if i.logger != nil {
		i.logger.Debug("manifest imported", zap.String("path", path), zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
	}
	return res, nil
}

// ImportDirectory imports every manifest under dir with a matching extension. A file
// that cannot be parsed is reported and skipped.
func (i *Importer) ImportDirectory(ctx context.Context, dir string, recursive bool) (*Result, error) {
	total := &Result{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !i.Accepts(path) {
			return nil
		}
		res, err := i.ImportFile(ctx, path)
		if err != nil {
			if res == nil {
				total.Errors = append(total.Errors, err.Error())
				return nil
			}
			total.merge(res)
			return err
		}
		total.merge(res)
		return nil
	})
	return total, err
}

// Accepts reports whether path is a manifest this importer reads.
func (i *Importer) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml", ".xlsx":
	default:
		return false
	}
	return matchExtension(path, i.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
