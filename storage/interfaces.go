package storage

import (
	"context"

	"auction-pipeline/models"
)

// RecordLoader is the interface any relational backend must satisfy.
type RecordLoader interface {
	Load(ctx context.Context, records []*models.NormalizedRecord) (models.RowCounts, []*models.NormalizedRecord, error)
}

// MarkerStore persists the single freshness checkpoint.
type MarkerStore interface {
	// Get returns the stored marker and whether one exists.
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, marker string) error
}

// ErrorSink keeps a copy of every listing that failed normalization.
type ErrorSink interface {
	Record(listing *models.RawListing, source string, cause error) error
}

// Archiver moves a fully loaded input file out of the pending area.
type Archiver interface {
	Archive(path string) error
}

// SummaryWriter is the interface for persisting per-file load summaries.
type SummaryWriter interface {
	WriteSummary(s *models.FileSummary) error
	Close() error
}

// RunLock serializes ingestion runs across processes.
type RunLock interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}
