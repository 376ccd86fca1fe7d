package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// KeyColumn is the first column of every flat table and identifies the listing.
const KeyColumn = "auction_id"

// BatchState remembers the columns, and their types, that the flat table has.
type BatchState struct {
	order []string
	types map[string]colKind
}

func newBatchState() *BatchState {
	return &BatchState{types: make(map[string]colKind)}
}

func (b *BatchState) add(name string, kind colKind) {
	b.order = append(b.order, name)
	b.types[name] = kind
}

// Has reports whether the column already exists.
func (b *BatchState) Has(name string) bool {
	_, ok := b.types[name]
	return ok
}

// Columns returns the column names in table order.
func (b *BatchState) Columns() []string {
	return append([]string(nil), b.order...)
}

// FlatTable is one wide table whose columns grow as new attributes appear.
// Columns are only ever added; none is removed or retyped.
type FlatTable struct {
	db      *sql.DB
	dialect Dialect
	name    string
	state   *BatchState
}

func NewFlatTable(db *sql.DB, d Dialect, name string) *FlatTable {
	return &FlatTable{db: db, dialect: d, name: name}
}

// State exposes the current column set; nil before the first merge.
func (t *FlatTable) State() *BatchState {
	return t.state
}

// Merge writes rows in one transaction. The first merge replaces any existing
// table; later merges add the columns they introduce and append. It returns
// the names of the columns it created.
func (t *FlatTable) Merge(ctx context.Context, rows []map[string]any) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	next := newBatchState()
	if t.state != nil {
		for _, c := range t.state.order {
			next.add(c, t.state.types[c])
		}
	}

	var added []string
	for _, c := range batchColumns(rows) {
		if next.Has(c) {
			continue
		}
		next.add(c, inferKind(rows, c))
		added = append(added, c)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("flat table: begin tx: %w", err)
	}
	defer tx.Rollback()

	if t.state == nil {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(t.name)); err != nil {
			return nil, fmt.Errorf("flat table: drop: %w", err)
		}
		defs := make([]string, 0, len(next.order))
		for _, c := range next.order {
			def := quoteIdent(c) + " " + t.dialect.sqlType(next.types[c])
			if c == KeyColumn {
				def += " PRIMARY KEY"
			}
			defs = append(defs, def)
		}
		create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.name), strings.Join(defs, ", "))
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return nil, fmt.Errorf("flat table: create: %w", err)
		}
	} else {
		for _, c := range added {
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				quoteIdent(t.name), quoteIdent(c), t.dialect.sqlType(next.types[c]))
			if _, err := tx.ExecContext(ctx, alter); err != nil {
				return nil, fmt.Errorf("flat table: add column %q: %w", c, err)
			}
		}
	}

	quoted := make([]string, len(next.order))
	for i, c := range next.order {
		quoted[i] = quoteIdent(c)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(t.name), strings.Join(quoted, ", "), t.dialect.Values(1, len(quoted)))

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return nil, fmt.Errorf("flat table: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(next.order))
	for _, row := range rows {
		for i, c := range next.order {
			args[i] = flatValue(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("flat table: insert %v: %w", row[KeyColumn], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("flat table: commit: %w", err)
	}
	t.state = next
	return added, nil
}

// batchColumns returns the key column followed by every other key, sorted.
func batchColumns(rows []map[string]any) []string {
	seen := map[string]struct{}{KeyColumn: {}}
	var rest []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append([]string{KeyColumn}, rest...)
}

// inferKind types a new column from the batch. Missing values are ignored; a
// column with no values at all is text.
func inferKind(rows []map[string]any, col string) colKind {
	sawInt, sawReal, sawAny := false, false, false
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case int64, int, bool:
			sawInt = true
		case float64:
			sawReal = true
		default:
			return kindText
		}
		sawAny = true
	}
	switch {
	case !sawAny:
		return kindText
	case sawReal:
		return kindReal
	case sawInt:
		return kindInt
	}
	return kindText
}

func flatValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(t)
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
