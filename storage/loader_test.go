package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"auction-pipeline/models"
	"auction-pipeline/utils"
)

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(SQLite, "file::memory:?_foreign_keys=on", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(context.Background(), db, SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestLoader(t *testing.T) (*Loader, *sql.DB) {
	db := openTestDB(t)
	return NewLoader(db, SQLite, utils.NewLogger()), db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func fullRecord(id string) *models.NormalizedRecord {
	return &models.NormalizedRecord{
		Auction: models.Auction{
			AuctionID: id,
			Price:     1250000,
			Bin:       true,
			Name:      strPtr("Enderman"),
			ItemID:    strPtr("ENDERMAN"),
			Extra: map[string]any{
				"hot_potato_count": int64(10),
				"modifier":         "withered",
				"rarity_upgrades":  "1",
				"dye_item":         map[string]any{"nested": int64(1)},
			},
		},
		Enchantments:   []models.Enchantment{{Name: "sharpness", Level: 5}, {Name: "growth", Level: 6}},
		Gems:           []models.Gem{{Slot: "COMBAT_0", Type: strPtr("JASPER"), Quality: "FINE"}, {Slot: "UNIVERSAL_0", Quality: "FLAWED"}},
		Runes:          []models.Rune{{Name: "MUSIC", Level: 3}},
		Boosters:       []models.Booster{{Name: "sweep"}},
		AbilityScrolls: []models.AbilityScroll{{Name: "IMPLOSION_SCROLL"}, {Name: "WITHER_SHIELD_SCROLL"}},
		Souls:          []models.SoulDrop{{Mob: strPtr("ZOMBIE"), Location: strPtr("dungeon"), Instance: strPtr("F7")}},
		Pet:            &models.PetInfo{Level: intPtr(100), Tier: strPtr("LEGENDARY"), CandyUsed: intPtr(0)},
		Fishing:        &models.FishingParts{Hook: strPtr("COMMON_HOOK"), Sinker: strPtr("JUNK_SINKER")},
	}
}

func TestInsertRecordWritesEveryTable(t *testing.T) {
	loader, db := newTestLoader(t)

	counts, err := loader.InsertRecord(context.Background(), fullRecord("a1"))
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	want := map[string]int{
		models.TableAuctions: 1, models.TableEnchantments: 2, models.TableGems: 2,
		models.TableRunes: 1, models.TableBoosters: 1, models.TableScrolls: 2,
		models.TableSouls: 1, models.TablePetInfo: 1, models.TableHooks: 1,
		models.TableLines: 0, models.TableSinkers: 1,
	}
	for table, n := range want {
		if counts[table] != n {
			t.Errorf("counts[%s]: got %d, want %d", table, counts[table], n)
		}
		if got := countRows(t, db, table); got != n {
			t.Errorf("rows in %s: got %d, want %d", table, got, n)
		}
	}

	var hpc sql.NullInt64
	var rarity sql.NullInt64
	var dye sql.NullString
	row := db.QueryRow("SELECT hot_potato_count, rarity_upgrades, dye_item FROM auctions WHERE auction_id = 'a1'")
	if err := row.Scan(&hpc, &rarity, &dye); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if hpc.Int64 != 10 || rarity.Int64 != 1 || dye.String != `{"nested":1}` {
		t.Errorf("coerced columns: hpc=%v rarity=%v dye=%v", hpc, rarity, dye)
	}
}

func TestInsertRecordDuplicateKey(t *testing.T) {
	loader, db := newTestLoader(t)
	ctx := context.Background()

	if _, err := loader.InsertRecord(ctx, fullRecord("dup")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	counts, err := loader.InsertRecord(ctx, fullRecord("dup"))
	if !errors.Is(err, models.ErrDuplicateKey) {
		t.Fatalf("second insert: got %v, want ErrDuplicateKey", err)
	}
	if counts.Total() != 0 {
		t.Errorf("duplicate should count nothing, got %v", counts)
	}
	if n := countRows(t, db, models.TableAuctions); n != 1 {
		t.Errorf("auctions rows: got %d, want 1", n)
	}
	if n := countRows(t, db, models.TableEnchantments); n != 2 {
		t.Errorf("enchantments rows: got %d, want 2 (no duplicate children)", n)
	}
}

func TestInsertRecordEmptyID(t *testing.T) {
	loader, _ := newTestLoader(t)
	_, err := loader.InsertRecord(context.Background(), &models.NormalizedRecord{})
	if !errors.Is(err, models.ErrNormalization) {
		t.Errorf("got %v, want ErrNormalization", err)
	}
}

func TestDependentFailureKeepsPrimary(t *testing.T) {
	loader, db := newTestLoader(t)
	if _, err := db.Exec("DROP TABLE runes"); err != nil {
		t.Fatalf("drop runes: %v", err)
	}

	counts, err := loader.InsertRecord(context.Background(), fullRecord("partial"))
	if err != nil {
		t.Fatalf("dependent failure must not fail the record: %v", err)
	}
	if counts[models.TableAuctions] != 1 || counts[models.TableEnchantments] != 2 {
		t.Errorf("rows before the failure should be kept: %v", counts)
	}
	if counts[models.TableSouls] != 0 || countRows(t, db, models.TableSouls) != 0 {
		t.Error("inserts after the failing table should be skipped")
	}
	if countRows(t, db, models.TableAuctions) != 1 {
		t.Error("primary row should be committed")
	}
}

func TestLoadJoinsPrimaryFailures(t *testing.T) {
	loader, _ := newTestLoader(t)
	ctx := context.Background()

	if _, err := loader.InsertRecord(ctx, fullRecord("x")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	counts, stored, err := loader.Load(ctx, []*models.NormalizedRecord{fullRecord("y"), fullRecord("x"), fullRecord("z")})
	if !errors.Is(err, models.ErrDuplicateKey) {
		t.Fatalf("Load error: got %v, want ErrDuplicateKey", err)
	}
	if counts[models.TableAuctions] != 2 {
		t.Errorf("auctions counted: got %d, want 2", counts[models.TableAuctions])
	}
	if len(stored) != 2 || stored[0].Auction.AuctionID != "y" || stored[1].Auction.AuctionID != "z" {
		t.Errorf("stored records should exclude the duplicate: %d", len(stored))
	}

	counts, stored, err = loader.Load(ctx, []*models.NormalizedRecord{fullRecord("w")})
	if err != nil || counts[models.TableAuctions] != 1 || len(stored) != 1 {
		t.Errorf("clean Load: counts=%v stored=%d err=%v", counts, len(stored), err)
	}
}

type entrySink struct{ entries []utils.Entry }

func (s *entrySink) Emit(e utils.Entry) { s.entries = append(s.entries, e) }

func TestRollbackFailureIsReported(t *testing.T) {
	db := openTestDB(t)
	sink := &entrySink{}
	loader := NewLoader(db, SQLite, utils.NewLoggerWithSink(sink))
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	err = loader.rollbackTo(ctx, tx, "sp_runes", "a1")
	if !errors.Is(err, models.ErrStorage) {
		t.Fatalf("got %v, want ErrStorage", err)
	}
	if len(sink.entries) != 1 || sink.entries[0].Level != utils.LevelError || sink.entries[0].Source != "loader" {
		t.Errorf("rollback failure should be logged as an error: %+v", sink.entries)
	}
}

func TestCascadeDelete(t *testing.T) {
	loader, db := newTestLoader(t)
	if _, err := loader.InsertRecord(context.Background(), fullRecord("gone")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec("DELETE FROM auctions WHERE auction_id = 'gone'"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, table := range models.Tables {
		if n := countRows(t, db, table); n != 0 {
			t.Errorf("%s still has %d rows after cascade", table, n)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in   any
		kind colKind
		want any
	}{
		{int64(3), kindInt, int64(3)},
		{float64(4), kindInt, int64(4)},
		{4.5, kindInt, nil},
		{"12", kindInt, int64(12)},
		{"abc", kindInt, nil},
		{int64(2), kindReal, float64(2)},
		{"1.5", kindReal, 1.5},
		{"plain", kindText, "plain"},
		{int64(7), kindText, "7"},
		{[]any{"a"}, kindText, `["a"]`},
		{nil, kindText, nil},
	}
	for _, tt := range tests {
		if got := coerce(tt.in, tt.kind); got != tt.want {
			t.Errorf("coerce(%#v, %d) = %#v; want %#v", tt.in, tt.kind, got, tt.want)
		}
	}
}

func TestDialectPlaceholders(t *testing.T) {
	if got := Postgres.Values(2, 2); got != "($1,$2),($3,$4)" {
		t.Errorf("postgres Values: %s", got)
	}
	if got := SQLite.Values(1, 3); got != "(?,?,?)" {
		t.Errorf("sqlite Values: %s", got)
	}
	if d, err := DialectFor("pgx"); err != nil || d.Placeholder(1) != "$1" {
		t.Errorf("pgx dialect: %v %v", d, err)
	}
	if _, err := DialectFor("mysql"); err == nil {
		t.Error("unsupported driver should fail")
	}
}
