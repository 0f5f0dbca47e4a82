// Package importer loads post manifests (JSON, YAML or Excel) into the repository and
// watches manifest directories for changes.
package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Row is one post in a manifest. Tags are space separated, each "name" or "type:name".
type Row struct {
	ID         string `json:"id" yaml:"id"`
	MediaURL   string `json:"media_url" yaml:"media_url"`
	PreviewURL string `json:"preview_url" yaml:"preview_url"`
	SourceURL  string `json:"source_url" yaml:"source_url"`
	Rating     string `json:"rating" yaml:"rating"`
	Tags       string `json:"tags" yaml:"tags"`
}

// manifestDoc is the object form of a JSON or YAML manifest; a bare list of rows is
// also accepted.
type manifestDoc struct {
	Posts []Row `json:"posts" yaml:"posts"`
}

// LoadManifest reads the rows of the manifest at path, choosing the format by extension.
func LoadManifest(path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSON(path)
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".xlsx":
		return loadExcel(path)
	default:
		return nil, fmt.Errorf("unsupported manifest type %q", filepath.Ext(path))
	}
}

func loadJSON(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err == nil {
		return rows, nil
	}
	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return doc.Posts, nil
}

func loadYAML(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var rows []Row
	if err := yaml.Unmarshal(data, &rows); err == nil {
		return rows, nil
	}
	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return doc.Posts, nil
}

// loadExcel reads the first sheet. Its first row names the columns; unknown columns
// are ignored.
func loadExcel(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []Row{}, nil
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return []Row{}, nil
	}

	columns := make(map[string]int, len(cells[0]))
	for i, name := range cells[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["media_url"]; !ok {
		return nil, fmt.Errorf("sheet %q has no media_url column", sheets[0])
	}
	get := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rows := make([]Row, 0, len(cells)-1)
	for _, cell := range cells[1:] {
		rows = append(rows, Row{
			ID:         get(cell, "id"),
			MediaURL:   get(cell, "media_url"),
			PreviewURL: get(cell, "preview_url"),
			SourceURL:  get(cell, "source_url"),
			Rating:     get(cell, "rating"),
			Tags:       get(cell, "tags"),
		})
	}
	return rows, nil
}
