package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"auction-pipeline/models"
	"auction-pipeline/storage"
	"auction-pipeline/utils"
)

// IngestOptions are the directory and parsing settings of an ingestion run.
type IngestOptions struct {
	InputDir   string
	ErrorDir   string
	SkipNonBIN bool
}

// Ingestor loads every pending snapshot file into the relational store.
type Ingestor struct {
	opts      IngestOptions
	gate      *ChangeGate
	loader    storage.RecordLoader
	archiver  storage.Archiver
	summaries storage.SummaryWriter
	lock      storage.RunLock
	reports   *ReportService
	logger    *utils.Logger
}

// NewIngestor wires an Ingestor. summaries and lock may be nil.
func NewIngestor(opts IngestOptions, gate *ChangeGate, loader storage.RecordLoader, archiver storage.Archiver,
	summaries storage.SummaryWriter, lock storage.RunLock, logger *utils.Logger) *Ingestor {
	return &Ingestor{
		opts:      opts,
		gate:      gate,
		loader:    loader,
		archiver:  archiver,
		summaries: summaries,
		lock:      lock,
		reports:   NewReportService(logger),
		logger:    logger,
	}
}

type pendingSnapshot struct {
	path string
	snap *models.Snapshot
}

// Run processes the input directory once. It returns models.ErrNoNewData
// when the newest snapshot marker was already ingested.
func (in *Ingestor) Run(ctx context.Context) (*models.RunReport, error) {
	log := in.logger.Named("ingest")

	if in.lock != nil {
		if err := in.lock.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		defer func() {
			if err := in.lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Could not release run lock: %v", err)
			}
		}()
	}

	runID := uuid.NewString()

	files, err := storage.ListSnapshots(in.opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if len(files) == 0 {
		log.Info("No snapshot files in %s", in.opts.InputDir)
		return in.reports.Generate(runID, nil, nil), nil
	}

	var pending []pendingSnapshot
	var newest *models.Snapshot
	for _, path := range files {
		snap, err := storage.ReadSnapshot(path)
		if err != nil {
			log.Error("Skipping %s: %v", filepath.Base(path), err)
			continue
		}
		pending = append(pending, pendingSnapshot{path: path, snap: snap})
		if newest == nil || snap.LastUpdated > newest.LastUpdated {
			newest = snap
		}
	}
	if newest == nil {
		return in.reports.Generate(runID, nil, nil), nil
	}

	marker := newest.Marker()
	seen, err := in.gate.Seen(ctx, marker)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if seen {
		log.Info("Snapshot %s already ingested, nothing to do", newest.Marker())
		return nil, models.ErrNoNewData
	}

	log.Info("Run %s: %d pending files, marker %s", runID, len(pending), newest.Marker())

	normalizer := NewNormalizer(in.logger, storage.NewFileErrorSink(in.opts.ErrorDir, runID), in.opts.SkipNonBIN)
	var summaries []*models.FileSummary
	var loaded []*models.NormalizedRecord
	storageFailures := 0

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		summary := in.ingestFile(ctx, normalizer, runID, p)
		summaries = append(summaries, summary.FileSummary)
		loaded = append(loaded, summary.stored...)
		if summary.storageFailed {
			storageFailures++
		}

		if in.summaries != nil {
			if err := in.summaries.WriteSummary(summary.FileSummary); err != nil {
				log.Error("Manifest write failed for %s: %v", filepath.Base(p.path), err)
			}
		}
	}

	// The marker only moves once the store has taken something, so a run that
	// failed entirely on storage is retried against the same snapshot.
	if storageFailures == len(pending) {
		log.Warn("Every file failed to load; marker %s not advanced", marker)
	} else if err := in.gate.Advance(ctx, marker); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	return in.reports.Generate(runID, summaries, loaded), nil
}

type fileOutcome struct {
	*models.FileSummary
	// records whose primary row was stored
	stored        []*models.NormalizedRecord
	storageFailed bool
}

// onlyDuplicates reports whether every error joined in err is a duplicate key.
func onlyDuplicates(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !errors.Is(e, models.ErrDuplicateKey) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, models.ErrDuplicateKey)
}

func (in *Ingestor) ingestFile(ctx context.Context, normalizer *Normalizer, runID string, p pendingSnapshot) fileOutcome {
	log := in.logger.Named("ingest")
	name := filepath.Base(p.path)

	res := normalizer.NormalizeSnapshot(p.path, p.snap)
	summary := &models.FileSummary{
		RunID:      runID,
		File:       p.path,
		Listings:   len(p.snap.Auctions),
		Normalized: len(res.Records),
		Failed:     res.Failed,
	}

	counts, stored, err := in.loader.Load(ctx, res.Records)
	summary.Counts = counts
	for _, table := range models.Tables {
		if counts[table] > 0 {
			log.Info("%s: %d rows into %s", name, counts[table], table)
		}
	}

	out := fileOutcome{FileSummary: summary, stored: stored}
	if err != nil {
		if onlyDuplicates(err) {
			log.Warn("%s not archived: duplicate auctions: %v", name, err)
		} else {
			log.Error("%s not archived: %v", name, err)
			out.storageFailed = true
		}
		return out
	}

	if err := in.archiver.Archive(p.path); err != nil {
		log.Error("Failed to archive %s: %v", name, err)
	} else {
		summary.Archived = true
		log.Info("Archived %s", name)
	}
	return out
}
