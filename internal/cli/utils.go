// Package cli provides output helpers for the booru command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/booru/internal/importer"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputIDs prints one post ID or tag name per line.
	OutputIDs OutputFormat = "ids"
)

// ParseOutputFormat returns the format named by s, or an error for unknown names.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON, OutputIDs:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or ids)", s)
	}
}

const captionWidth = 60

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WritePage writes one gallery page to w in the given format.
func WritePage(w io.Writer, page *models.Page, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, page)
	case OutputIDs:
		for _, p := range page.Items {
			fmt.Fprintln(w, p.ID)
		}
		return nil
	default:
		writePageText(w, page)
		return nil
	}
}

func writePageText(w io.Writer, page *models.Page) {
	mode := "indexed"
	if page.Filtered {
		mode = "filtered"
	}
	fmt.Fprintf(w, "\n%d posts, page %d of %d (%s, %dms, ratings: %s)\n\n",
		page.Total, page.Page, page.TotalPages, mode, page.QueryTime, strings.Join(page.Ratings, ","))
	for _, p := range page.Items {
		writePostLine(w, p)
	}
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No posts found.")
	}
}

func writePostLine(w io.Writer, p *models.Post) {
	kind := "image"
	if p.IsVideo() {
		kind = "video"
	}
	fmt.Fprintf(w, "%-36s  %-12s  %-5s  %s\n", p.ID, p.Rating, kind, utils.Truncate(p.Caption(), captionWidth))
}

// WritePost writes a single post with all of its fields.
func WritePost(w io.Writer, p *models.Post, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, p)
	case OutputIDs:
		fmt.Fprintln(w, p.ID)
		return nil
	}
	fmt.Fprintf(w, "ID:        %s\n", p.ID)
	fmt.Fprintf(w, "Rating:    %s\n", p.Rating)
	fmt.Fprintf(w, "Media:     %s\n", p.MediaURL)
	fmt.Fprintf(w, "Thumbnail: %s\n", p.ThumbnailURL())
	if p.SourceURL != "" {
		fmt.Fprintf(w, "Source:    %s\n", p.SourceURL)
	}
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:   %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w, "Tags:")
	for _, t := range p.Tags {
		fmt.Fprintf(w, "  %-10s %s\n", t.Type, t.Name)
	}
	return nil
}

// WriteTags writes a tag list with post counts.
func WriteTags(w io.Writer, tags []models.Tag, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, tags)
	case OutputIDs:
		for _, t := range tags {
			fmt.Fprintln(w, t.Name)
		}
		return nil
	}
	if len(tags) == 0 {
		fmt.Fprintln(w, "No tags.")
		return nil
	}
	for _, t := range tags {
		fmt.Fprintf(w, "%6d  %-10s %s\n", t.Count, t.Type, t.Name)
	}
	return nil
}

// WriteImportResult summarises an import run.
func WriteImportResult(w io.Writer, result *importer.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "Imported %d posts from %d files (%d rows skipped)\n", result.Imported, result.Files, result.Skipped)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	return nil
}

// PrintPage prints a page to stdout in text format.
func PrintPage(page *models.Page) {
	_ = WritePage(os.Stdout, page, OutputText)
}
