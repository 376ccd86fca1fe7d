package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"auction-pipeline/models"
)

// FileErrorSink dumps failed listings as JSON files for manual inspection.
// The pipeline never reads them back.
type FileErrorSink struct {
	dir   string
	runID string
}

func NewFileErrorSink(dir, runID string) *FileErrorSink {
	return &FileErrorSink{dir: dir, runID: runID}
}

type errorArtifact struct {
	AuctionID string          `json:"auction_id"`
	Source    string          `json:"source"`
	RunID     string          `json:"run_id"`
	Error     string          `json:"error"`
	FailedAt  time.Time       `json:"failed_at"`
	Listing   json.RawMessage `json:"listing,omitempty"`
}

// ArtifactName returns the file name used for a failed listing.
func ArtifactName(auctionID, source string) string {
	if auctionID == "" {
		auctionID = "unknown"
	}
	return fmt.Sprintf("%s_from_%s.json", auctionID, filepath.Base(source))
}

// Record writes one artifact. Names are unique per listing and source, so
// concurrent workers never write the same file.
func (s *FileErrorSink) Record(listing *models.RawListing, source string, cause error) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("error sink: create dir: %w", err)
	}

	art := errorArtifact{
		AuctionID: listing.AuctionID,
		Source:    filepath.Base(source),
		RunID:     s.runID,
		FailedAt:  time.Now().UTC(),
	}
	if cause != nil {
		art.Error = cause.Error()
	}
	if json.Valid(listing.Raw) {
		art.Listing = listing.Raw
	}

	b, err := json.MarshalIndent(art, "", "    ")
	if err != nil {
		return fmt.Errorf("error sink: marshal: %w", err)
	}
	path := filepath.Join(s.dir, ArtifactName(listing.AuctionID, source))
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("error sink: write %q: %w", path, err)
	}
	return nil
}
