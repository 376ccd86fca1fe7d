package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"auction-pipeline/models"
)

// CSVWriter appends per-file load summaries to a manifest CSV.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens (or creates) the manifest at the given path and writes the
// header row when the file is new. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if info.Size() == 0 {
		header := []string{"run_id", "file", "listings", "normalized", "failed"}
		header = append(header, models.Tables...)
		header = append(header, "archived", "written_at")
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteSummary appends one manifest row.
func (c *CSVWriter) WriteSummary(s *models.FileSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{
		s.RunID,
		filepath.Base(s.File),
		strconv.Itoa(s.Listings),
		strconv.Itoa(s.Normalized),
		strconv.Itoa(s.Failed),
	}
	for _, table := range models.Tables {
		row = append(row, strconv.Itoa(s.Counts[table]))
	}
	row = append(row, strconv.FormatBool(s.Archived), time.Now().UTC().Format(time.RFC3339))

	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
