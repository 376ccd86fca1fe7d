package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"auction-pipeline/models"
)

type colKind int

const (
	kindInt colKind = iota
	kindReal
	kindText
)

type column struct {
	name string
	kind colKind
}

var textExtras = map[string]struct{}{
	"modifier": {}, "dye_item": {}, "power_ability_scroll": {},
	"drill_part_upgrade_module": {}, "talisman_enrichment": {},
	"drill_part_fuel_tank": {}, "skin": {}, "drill_part_engine": {},
	"pandora_rarity": {},
}

var realExtras = map[string]struct{}{
	"baseStatBoostPercentage": {},
}

// auctionColumns is the primary-table column list in insert order.
var auctionColumns = buildAuctionColumns()

func buildAuctionColumns() []column {
	cols := []column{
		{"auction_id", kindText},
		{"price", kindReal},
		{"bin", kindInt},
		{"name", kindText},
		{"item_id", kindText},
	}
	for _, key := range models.ExtraKeys {
		kind := kindInt
		if _, ok := textExtras[key]; ok {
			kind = kindText
		} else if _, ok := realExtras[key]; ok {
			kind = kindReal
		}
		cols = append(cols, column{key, kind})
	}
	return cols
}

func (d Dialect) sqlType(k colKind) string {
	switch k {
	case kindInt:
		return d.intType
	case kindReal:
		return d.realType
	}
	return "TEXT"
}

// DDL returns the statements creating the primary table and its dependents.
func (d Dialect) DDL() []string {
	var main strings.Builder
	main.WriteString("CREATE TABLE IF NOT EXISTS auctions (\n")
	for i, c := range auctionColumns {
		main.WriteString("\t" + c.name + " " + d.sqlType(c.kind))
		switch c.name {
		case "auction_id":
			main.WriteString(" PRIMARY KEY")
		case "bin":
			main.WriteString(" NOT NULL DEFAULT 0 CHECK (bin IN (0, 1))")
		}
		if i < len(auctionColumns)-1 {
			main.WriteString(",")
		}
		main.WriteString("\n")
	}
	main.WriteString(")")

	fk := "auction_id TEXT NOT NULL REFERENCES auctions(auction_id) ON DELETE CASCADE"
	oneToOne := "auction_id TEXT PRIMARY KEY REFERENCES auctions(auction_id) ON DELETE CASCADE"

	stmts := []string{
		main.String(),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS enchantments (id %s, %s, name TEXT, level %s)`, d.autoID, fk, d.intType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS gems (id %s, %s, gem_slot TEXT, gem_type TEXT, quality TEXT)`, d.autoID, fk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS runes (id %s, %s, name TEXT, level %s)`, d.autoID, fk, d.intType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS boosters (id %s, %s, name TEXT)`, d.autoID, fk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pet_info (%s, level %s, tier TEXT, candy_used %s, held_item TEXT, pet_skin TEXT)`, oneToOne, d.intType, d.intType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ability_scrolls (id %s, %s, name TEXT)`, d.autoID, fk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS hooks (%s, name TEXT)`, oneToOne),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lines (%s, name TEXT)`, oneToOne),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sinkers (%s, name TEXT)`, oneToOne),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS souls (id %s, %s, name TEXT, location TEXT, instance TEXT)`, d.autoID, fk),
		`CREATE INDEX IF NOT EXISTS idx_auctions_item_id ON auctions(item_id)`,
	}
	for _, t := range []string{"enchantments", "gems", "runes", "boosters", "ability_scrolls", "souls"} {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_auction ON %s(auction_id)`, t, t))
	}
	return stmts
}

// Migrate creates every table that does not exist yet.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.DDL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: migrate: %w", err)
		}
	}
	return nil
}
