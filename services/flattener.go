package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"

	"auction-pipeline/models"
	"auction-pipeline/storage"
	"auction-pipeline/utils"
)

// FlattenOptions tune the bulk reprocessing run.
type FlattenOptions struct {
	BatchSize    int
	Workers      int
	LogQueueSize int
	SkipNonBIN   bool
	// RateLimitMs spaces out the start of worker tasks.
	RateLimitMs int
}

// FlattenStats summarizes one Flattener run.
type FlattenStats struct {
	Files      int
	Batches    int
	Rows       int
	Failed     int
	Duplicates int
	Columns    int
}

// Flattener reprocesses snapshot files in parallel and merges one wide row per
// auction into a FlatTable. Workers only normalize; every write happens in
// the coordinating goroutine between batches.
type Flattener struct {
	opts   FlattenOptions
	table  *storage.FlatTable
	sink   utils.Sink
	errors storage.ErrorSink
}

// NewFlattener creates a Flattener. Entries from all workers end up in sink.
// errs may be nil.
func NewFlattener(opts FlattenOptions, table *storage.FlatTable, sink utils.Sink, errs storage.ErrorSink) *Flattener {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Flattener{opts: opts, table: table, sink: sink, errors: errs}
}

type fileResult struct {
	records []*models.NormalizedRecord
	failed  int
}

// Run flattens files batch by batch. A batch blocks until all of its workers
// have returned; cancellation is checked between batches.
func (f *Flattener) Run(ctx context.Context, files []string) (*FlattenStats, error) {
	listener := utils.NewLogListener(f.sink, f.opts.LogQueueSize)
	listener.Start()
	defer listener.Stop()

	log := utils.NewLoggerWithSink(listener.Sink()).Named("flatten")
	pool := utils.NewWorkerPool(f.opts.Workers, f.opts.RateLimitMs)
	seen := utils.NewKeySet()
	stats := &FlattenStats{}

	log.Info("Flattening %d files in batches of %d with %d workers", len(files), f.opts.BatchSize, pool.Size())

	for start := 0; start < len(files); start += f.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+f.opts.BatchSize, len(files))
		batch := files[start:end]

		results := make([]fileResult, len(batch))
		for i, path := range batch {
			i, path := i, path
			pool.Submit(func() {
				results[i] = f.normalizeFile(listener, path)
			})
		}
		pool.Wait()

		var rows []map[string]any
		for _, res := range results {
			stats.Failed += res.failed
			for _, rec := range res.records {
				if !seen.Add(rec.Auction.AuctionID) {
					stats.Duplicates++
					continue
				}
				rows = append(rows, FlattenRecord(rec))
			}
		}

		added, err := f.table.Merge(ctx, rows)
		if err != nil {
			return stats, fmt.Errorf("flatten: batch %d: %w", stats.Batches+1, err)
		}

		stats.Batches++
		stats.Files += len(batch)
		stats.Rows += len(rows)
		log.Info("Batch %d: %d files, %d rows, %d new columns", stats.Batches, len(batch), len(rows), len(added))

		results, rows = nil, nil
		debug.FreeOSMemory()
	}

	if state := f.table.State(); state != nil {
		stats.Columns = len(state.Columns())
	}
	log.Info("Done: %d rows for %d unique auctions, %d columns, %d duplicates skipped, %d failed listings",
		stats.Rows, seen.Size(), stats.Columns, stats.Duplicates, stats.Failed)
	return stats, nil
}

// normalizeFile runs inside a worker with its own normalizer and logger.
func (f *Flattener) normalizeFile(listener *utils.LogListener, path string) fileResult {
	logger := utils.NewLoggerWithSink(listener.Sink()).Named("worker " + filepath.Base(path))

	snap, err := storage.ReadSnapshot(path)
	if err != nil {
		logger.Error("Skipping file: %v", err)
		return fileResult{}
	}
	res := NewNormalizer(logger, f.errors, f.opts.SkipNonBIN).NormalizeSnapshot(path, snap)
	return fileResult{records: res.Records, failed: res.Failed}
}

// FlattenRecord turns one record into a single wide row keyed by column name.
// Absent optional values are left out, which stores them as NULL.
func FlattenRecord(rec *models.NormalizedRecord) map[string]any {
	a := &rec.Auction
	row := map[string]any{
		storage.KeyColumn: a.AuctionID,
		"price":           a.Price,
		"bin":             a.Bin,
	}
	putString(row, "name", a.Name)
	putString(row, "item_id", a.ItemID)

	for k, v := range a.Extra {
		row[k] = flatScalar(v)
	}

	if p := rec.Pet; p != nil {
		putInt(row, "pet_level", p.Level)
		putString(row, "pet_tier", p.Tier)
		putInt(row, "pet_candy_used", p.CandyUsed)
		putString(row, "pet_held_item", p.HeldItem)
		putString(row, "pet_skin", p.Skin)
	}
	if fp := rec.Fishing; fp != nil {
		putString(row, "hook_name", fp.Hook)
		putString(row, "line_name", fp.Line)
		putString(row, "sinker_name", fp.Sinker)
	}

	for _, e := range rec.Enchantments {
		row["ench_"+e.Name] = e.Level
	}
	for _, r := range rec.Runes {
		row["rune_"+r.Name] = r.Level
	}
	for _, g := range rec.Gems {
		row["gem_"+g.Slot] = g.Quality
	}

	row["enchantment_count"] = int64(len(rec.Enchantments))
	row["gem_count"] = int64(len(rec.Gems))
	row["soul_count"] = int64(len(rec.Souls))

	if len(rec.Boosters) > 0 {
		names := make([]string, len(rec.Boosters))
		for i, b := range rec.Boosters {
			names[i] = b.Name
		}
		row["boosters"] = strings.Join(names, ",")
	}
	if len(rec.AbilityScrolls) > 0 {
		names := make([]string, len(rec.AbilityScrolls))
		for i, s := range rec.AbilityScrolls {
			names[i] = s.Name
		}
		row["ability_scrolls"] = strings.Join(names, ",")
	}

	if a.Bin && a.Price > 0 {
		row["tax"] = AuctionTax(a.Price).InexactFloat64()
		row["net_price"] = NetPrice(a.Price).InexactFloat64()
	}
	return row
}

// flatScalar keeps scalars and encodes containers as JSON text.
func flatScalar(v any) any {
	switch v.(type) {
	case nil, string, int64, float64, bool:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func putString(row map[string]any, col string, v *string) {
	if v != nil {
		row[col] = *v
	}
}

func putInt(row map[string]any, col string, v *int64) {
	if v != nil {
		row[col] = *v
	}
}
