package models

// Sub-entity table names. The order is the insert order and the report order.
const (
	TableAuctions     = "auctions"
	TableEnchantments = "enchantments"
	TableGems         = "gems"
	TableBoosters     = "boosters"
	TablePetInfo      = "pet_info"
	TableRunes        = "runes"
	TableHooks        = "hooks"
	TableLines        = "lines"
	TableSinkers      = "sinkers"
	TableScrolls      = "ability_scrolls"
	TableSouls        = "souls"
)

// Tables lists every table a NormalizedRecord can write to.
var Tables = []string{
	TableAuctions, TableEnchantments, TableGems, TableBoosters, TablePetInfo,
	TableRunes, TableHooks, TableLines, TableSinkers, TableScrolls, TableSouls,
}

// GemTypes are the slot prefixes that name a gemstone type on their own.
var GemTypes = map[string]struct{}{
	"RUBY": {}, "AMBER": {}, "TOPAZ": {}, "JADE": {}, "SAPPHIRE": {}, "AMETHYST": {},
	"JASPER": {}, "OPAL": {}, "AQUAMARINE": {}, "CITRINE": {}, "ONYX": {}, "PERIDOT": {},
}

// ExtraKeys are the attribute-bag keys copied through to the primary row verbatim.
var ExtraKeys = []string{
	"rarity_upgrades", "hot_potato_count", "modifier", "dungeon_item_level",
	"upgrade_level", "dye_item", "item_tier", "hecatomb_s_runs", "eman_kills",
	"baseStatBoostPercentage", "stats_book", "power_ability_scroll",
	"divan_powder_coating", "thunder_charge", "tuned_transmission", "ethermerge",
	"farming_for_dummies_count", "drill_part_upgrade_module", "talisman_enrichment",
	"polarvoid", "mined_crops", "bookworm_books", "drill_part_fuel_tank", "boss_tier",
	"blood_god_kills", "winning_bid", "collected_coins", "wet_book_count",
	"pelts_earned", "gilded_gifted_coins", "additional_coins", "skin",
	"mana_disintegrator_count", "jalapeno_count", "art_of_war_count",
	"magma_cube_absorber", "spider_kills", "chimera_found", "logs_cut",
	"absorb_logs_chopped", "wood_singularity_count", "artOfPeaceApplied",
	"zombie_kills", "drill_part_engine", "pandora_rarity", "blaze_consumer",
	"handles_found",
}

// Auction is the primary fact row. Extra holds the ExtraKeys that were present.
type Auction struct {
	AuctionID string
	Price     float64
	Bin       bool
	Name      *string
	ItemID    *string
	Extra     map[string]any
}

type Enchantment struct {
	Name  string
	Level int64
}

// Gem is one socketed gemstone. Type is nil when neither a hint nor the slot
// name identifies it.
type Gem struct {
	Slot    string
	Type    *string
	Quality string
}

type Rune struct {
	Name  string
	Level int64
}

type Booster struct {
	Name string
}

type AbilityScroll struct {
	Name string
}

// PetInfo is present for companions only.
type PetInfo struct {
	Level     *int64
	Tier      *string
	CandyUsed *int64
	HeldItem  *string
	Skin      *string
}

// FishingParts holds the rod attachments; each part is nil when its bag is absent.
type FishingParts struct {
	Hook   *string
	Line   *string
	Sinker *string
}

// SoulDrop is one stored necromancer soul. Instance is set only for dungeon drops.
type SoulDrop struct {
	Mob      *string
	Location *string
	Instance *string
}

// NormalizedRecord is one listing after normalization. Every sub-entity is
// joined to the Auction through Auction.AuctionID.
type NormalizedRecord struct {
	Auction        Auction
	Enchantments   []Enchantment
	Gems           []Gem
	Runes          []Rune
	Boosters       []Booster
	AbilityScrolls []AbilityScroll
	Souls          []SoulDrop
	Pet            *PetInfo
	Fishing        *FishingParts
}

// RowCounts maps a table name to the number of rows inserted into it.
type RowCounts map[string]int

// Add accumulates other into c.
func (c RowCounts) Add(other RowCounts) {
	for table, n := range other {
		c[table] += n
	}
}

// Total returns the sum over all tables.
func (c RowCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
