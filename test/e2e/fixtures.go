package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/booru/internal/importer"
)

// ManifestExtensions are the manifest formats WriteManifests produces, in order.
var ManifestExtensions = []string{".json", ".yaml", ".xlsx"}

// WriteManifests splits rows evenly across one manifest per format in dir and returns
// the written paths.
func WriteManifests(dir string, rows []importer.Row) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	chunk := (len(rows) + len(ManifestExtensions) - 1) / len(ManifestExtensions)
	paths := make([]string, 0, len(ManifestExtensions))
	for i, ext := range ManifestExtensions {
		lo, hi := i*chunk, (i+1)*chunk
		if lo > len(rows) {
			lo = len(rows)
		}
		if hi > len(rows) {
			hi = len(rows)
		}
		path := filepath.Join(dir, fmt.Sprintf("manifest-%d%s", i, ext))
		if err := writeManifest(path, ext, rows[lo:hi]); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeManifest(path, ext string, rows []importer.Row) error {
	switch ext {
	case ".json":
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	case ".yaml":
		data, err := yaml.Marshal(map[string]interface{}{"posts": rows})
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	case ".xlsx":
		return writeExcelManifest(path, rows)
	default:
		return fmt.Errorf("unsupported manifest type %q", ext)
	}
}

func writeExcelManifest(path string, rows []importer.Row) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	header := []interface{}{"id", "media_url", "source_url", "rating", "tags"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{r.ID, r.MediaURL, r.SourceURL, r.Rating, r.Tags}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
