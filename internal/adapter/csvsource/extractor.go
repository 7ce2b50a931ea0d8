// Package csvsource reads review records out of CSV data files.
package csvsource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/review-insights/internal/domain"
	"github.com/fairyhunter13/review-insights/pkg/textx"
)

// Extractor streams reviews from header-mapped CSV files under a data
// directory. Column order does not matter; only the review_id, date,
// rating and text headers are read.
type Extractor struct {
	DataFilesPath string
}

func New(dataFilesPath string) *Extractor {
	return &Extractor{DataFilesPath: dataFilesPath}
}

// Resolve returns the absolute path for filename inside the data directory
// and verifies both that it exists and that it actually holds CSV or plain
// text content rather than a mislabeled binary.
func (e *Extractor) Resolve(filename string) (string, error) {
	path := filepath.Join(e.DataFilesPath, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("op=csvsource.Resolve: %w: %s", domain.ErrNotFound, path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("op=csvsource.Resolve: %w", err)
	}
	if !mt.Is("text/csv") && !mt.Is("text/plain") {
		return "", fmt.Errorf("op=csvsource.Resolve: %w: %s is %s, not CSV", domain.ErrInvalidArgument, filename, mt.String())
	}
	return path, nil
}

// Extract reads every row of the named CSV file and invokes fn per review.
// Rows are sanitized of control characters before being handed over. A
// non-nil error from fn stops the scan.
func (e *Extractor) Extract(filename string, fn func(domain.Review) error) error {
	path, err := e.Resolve(filename)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("op=csvsource.Extract: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("op=csvsource.Extract: read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[textx.SanitizeText(h)] = i
	}
	for _, required := range []string{"review_id", "rating", "text"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("op=csvsource.Extract: %w: missing column %q", domain.ErrInvalidArgument, required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return textx.SanitizeText(row[i])
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("op=csvsource.Extract: read row: %w", err)
		}
		review := domain.Review{
			ReviewID: field(row, "review_id"),
			Date:     field(row, "date"),
			Rating:   field(row, "rating"),
			Text:     field(row, "text"),
		}
		if err := fn(review); err != nil {
			return err
		}
	}
}
