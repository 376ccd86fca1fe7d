package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"auction-pipeline/models"
	"auction-pipeline/utils"
)

const insertBatchSize = 50

// Loader persists normalized records, one transaction per record.
type Loader struct {
	db      *sql.DB
	dialect Dialect
	logger  *utils.Logger
}

// NewLoader returns a Loader for an already migrated database.
func NewLoader(db *sql.DB, d Dialect, logger *utils.Logger) *Loader {
	return &Loader{db: db, dialect: d, logger: logger.Named("loader")}
}

// Load inserts every record and returns the rows written per table together
// with the records whose primary row was stored. The error joins the
// primary-row failures; it is nil only when every record's primary row was
// stored.
func (l *Loader) Load(ctx context.Context, records []*models.NormalizedRecord) (models.RowCounts, []*models.NormalizedRecord, error) {
	counts := models.RowCounts{}
	stored := make([]*models.NormalizedRecord, 0, len(records))
	var errs []error

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return counts, stored, err
		}
		rc, err := l.InsertRecord(ctx, rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts.Add(rc)
		stored = append(stored, rec)
	}
	return counts, stored, errors.Join(errs...)
}

// subRows is one multi-row insert into a dependent table.
type subRows struct {
	table   string
	columns []string
	rows    [][]any
}

// InsertRecord writes the primary row, then each dependent table behind its own
// savepoint. A dependent failure is logged and stops the remaining dependent
// inserts for this record; the rows already written are kept.
func (l *Loader) InsertRecord(ctx context.Context, rec *models.NormalizedRecord) (models.RowCounts, error) {
	id := rec.Auction.AuctionID
	if id == "" {
		return nil, fmt.Errorf("%w: record without auction id", models.ErrNormalization)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx for %s: %v", models.ErrStorage, id, err)
	}
	defer tx.Rollback()

	names := make([]string, len(auctionColumns))
	for i, c := range auctionColumns {
		names[i] = c.name
	}
	query := fmt.Sprintf("INSERT INTO auctions (%s) VALUES %s",
		strings.Join(names, ", "), l.dialect.Values(1, len(names)))

	if _, err := tx.ExecContext(ctx, query, auctionArgs(&rec.Auction)...); err != nil {
		if IsUniqueViolation(err) {
			l.logger.Warn("Auction already exists: %s", id)
			return nil, fmt.Errorf("%w: auction %s", models.ErrDuplicateKey, id)
		}
		l.logger.Error("Failed to insert auction %s: %v", id, err)
		return nil, fmt.Errorf("%w: insert auction %s: %v", models.ErrStorage, id, err)
	}

	counts := models.RowCounts{models.TableAuctions: 1}

	for _, sub := range dependentRows(rec) {
		if len(sub.rows) == 0 {
			continue
		}
		sp := "sp_" + sub.table
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			l.logger.Error("%v", fmt.Errorf("%w: savepoint for %s: %v", models.ErrStorage, id, err))
			break
		}
		if err := l.insertRows(ctx, tx, sub); err != nil {
			l.logger.Error("Failed to insert %s for auction %s: %v", sub.table, id,
				fmt.Errorf("%w: %v", models.ErrStorage, err))
			if err := l.rollbackTo(ctx, tx, sp, id); err != nil {
				return nil, err
			}
			break
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			l.logger.Error("%v", fmt.Errorf("%w: release savepoint for %s: %v", models.ErrStorage, id, err))
			break
		}
		counts[sub.table] += len(sub.rows)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit auction %s: %v", models.ErrStorage, id, err)
	}
	return counts, nil
}

// rollbackTo undoes a failed dependent insert. If that fails too the
// transaction cannot be trusted, so the whole record is reported as failed.
func (l *Loader) rollbackTo(ctx context.Context, tx *sql.Tx, savepoint, id string) error {
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
		l.logger.Error("Rollback to %s failed for auction %s: %v", savepoint, id, err)
		return fmt.Errorf("%w: rollback %s for %s: %v", models.ErrStorage, savepoint, id, err)
	}
	return nil
}

func (l *Loader) insertRows(ctx context.Context, tx *sql.Tx, sub subRows) error {
	for i := 0; i < len(sub.rows); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(sub.rows) {
			end = len(sub.rows)
		}
		batch := sub.rows[i:end]

		args := make([]any, 0, len(batch)*len(sub.columns))
		for _, row := range batch {
			args = append(args, row...)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			sub.table, strings.Join(sub.columns, ", "), l.dialect.Values(len(batch), len(sub.columns)))

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func auctionArgs(a *models.Auction) []any {
	args := make([]any, 0, len(auctionColumns))
	bin := int64(0)
	if a.Bin {
		bin = 1
	}
	args = append(args, a.AuctionID, a.Price, bin, deref(a.Name), deref(a.ItemID))
	for _, c := range auctionColumns[5:] {
		args = append(args, coerce(a.Extra[c.name], c.kind))
	}
	return args
}

func dependentRows(rec *models.NormalizedRecord) []subRows {
	id := rec.Auction.AuctionID

	ench := subRows{table: models.TableEnchantments, columns: []string{"auction_id", "name", "level"}}
	for _, e := range rec.Enchantments {
		ench.rows = append(ench.rows, []any{id, e.Name, e.Level})
	}

	gems := subRows{table: models.TableGems, columns: []string{"auction_id", "gem_slot", "gem_type", "quality"}}
	for _, g := range rec.Gems {
		gems.rows = append(gems.rows, []any{id, g.Slot, deref(g.Type), g.Quality})
	}

	boosters := subRows{table: models.TableBoosters, columns: []string{"auction_id", "name"}}
	for _, b := range rec.Boosters {
		boosters.rows = append(boosters.rows, []any{id, b.Name})
	}

	pet := subRows{table: models.TablePetInfo, columns: []string{"auction_id", "level", "tier", "candy_used", "held_item", "pet_skin"}}
	if p := rec.Pet; p != nil {
		pet.rows = append(pet.rows, []any{id, deref(p.Level), deref(p.Tier), deref(p.CandyUsed), deref(p.HeldItem), deref(p.Skin)})
	}

	runes := subRows{table: models.TableRunes, columns: []string{"auction_id", "name", "level"}}
	for _, r := range rec.Runes {
		runes.rows = append(runes.rows, []any{id, r.Name, r.Level})
	}

	hooks := subRows{table: models.TableHooks, columns: []string{"auction_id", "name"}}
	lines := subRows{table: models.TableLines, columns: []string{"auction_id", "name"}}
	sinkers := subRows{table: models.TableSinkers, columns: []string{"auction_id", "name"}}
	if f := rec.Fishing; f != nil {
		if f.Hook != nil {
			hooks.rows = append(hooks.rows, []any{id, *f.Hook})
		}
		if f.Line != nil {
			lines.rows = append(lines.rows, []any{id, *f.Line})
		}
		if f.Sinker != nil {
			sinkers.rows = append(sinkers.rows, []any{id, *f.Sinker})
		}
	}

	scrolls := subRows{table: models.TableScrolls, columns: []string{"auction_id", "name"}}
	for _, s := range rec.AbilityScrolls {
		scrolls.rows = append(scrolls.rows, []any{id, s.Name})
	}

	souls := subRows{table: models.TableSouls, columns: []string{"auction_id", "name", "location", "instance"}}
	for _, s := range rec.Souls {
		souls.rows = append(souls.rows, []any{id, deref(s.Mob), deref(s.Location), deref(s.Instance)})
	}

	return []subRows{ench, gems, boosters, pet, runes, hooks, lines, sinkers, scrolls, souls}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// coerce converts a decoded attribute into the column's declared kind, or nil
// when it cannot be represented.
func coerce(v any, kind colKind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case kindInt:
		switch t := v.(type) {
		case int64:
			return t
		case float64:
			if t == math.Trunc(t) {
				return int64(t)
			}
		case string:
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return n
			}
		case bool:
			if t {
				return int64(1)
			}
			return int64(0)
		}
		return nil
	case kindReal:
		switch t := v.(type) {
		case int64:
			return float64(t)
		case float64:
			return t
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f
			}
		}
		return nil
	}

	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
