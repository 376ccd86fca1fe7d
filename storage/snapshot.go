package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"auction-pipeline/models"
)

// ReadSnapshot loads one snapshot file. A missing or undecodable file is
// reported as models.ErrSourceUnavailable.
func ReadSnapshot(path string) (*models.Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w: %v", path, models.ErrSourceUnavailable, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode %q: %w: %v", path, models.ErrSourceUnavailable, err)
	}
	return &snap, nil
}
