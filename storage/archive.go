package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"auction-pipeline/models"
	"auction-pipeline/utils"
)

// DirArchiver moves files into a single archive directory.
type DirArchiver struct {
	dir   string
	retry *utils.RetryConfig
}

func NewDirArchiver(dir string, retry *utils.RetryConfig) *DirArchiver {
	return &DirArchiver{dir: dir, retry: retry}
}

// Archive moves path into the archive directory, keeping its base name.
func (a *DirArchiver) Archive(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("archive: %w: %v", models.ErrSourceUnavailable, err)
	}
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return fmt.Errorf("archive: create dir: %w", err)
	}

	dest := filepath.Join(a.dir, filepath.Base(path))
	move := func() error { return os.Rename(path, dest) }
	if a.retry == nil {
		return move()
	}
	return a.retry.Do("archive "+filepath.Base(path), move)
}

// ListSnapshots returns the *.json files directly inside dir, sorted by name.
func ListSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w: %v", dir, models.ErrSourceUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
