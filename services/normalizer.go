package services

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"auction-pipeline/itemtree"
	"auction-pipeline/models"
	"auction-pipeline/storage"
	"auction-pipeline/utils"
)

var (
	// colourRegexp matches a formatting code: the section sign and the code after it.
	colourRegexp = regexp.MustCompile(`§.`)
	// levelRegexp captures the companion level token, e.g. "[Lvl 100]".
	levelRegexp = regexp.MustCompile(`\[Lvl (\d+)\]`)
)

const petCategory = "PET"

// Normalizer turns raw listings into NormalizedRecords.
// It keeps no state between listings, so each worker can own one.
type Normalizer struct {
	logger     *utils.Logger
	sink       storage.ErrorSink
	skipNonBIN bool
}

// NewNormalizer creates a Normalizer. sink may be nil when failed listings do
// not need to be kept.
func NewNormalizer(logger *utils.Logger, sink storage.ErrorSink, skipNonBIN bool) *Normalizer {
	return &Normalizer{logger: logger.Named("normalizer"), sink: sink, skipNonBIN: skipNonBIN}
}

// NormalizeResult is the outcome of normalizing one snapshot.
type NormalizeResult struct {
	Records []*models.NormalizedRecord
	Skipped int
	Failed  int
}

// NormalizeSnapshot normalizes every listing of a snapshot. A listing that
// fails is logged, written to the error sink and left out; the rest continue.
func (n *Normalizer) NormalizeSnapshot(source string, snap *models.Snapshot) *NormalizeResult {
	res := &NormalizeResult{Records: make([]*models.NormalizedRecord, 0, len(snap.Auctions))}
	name := filepath.Base(source)

	for _, l := range snap.Auctions {
		if l == nil {
			continue
		}
		if n.skipNonBIN && !l.Bin && l.FieldErr == nil {
			res.Skipped++
			continue
		}

		rec, err := n.normalizeSafe(l)
		if err != nil {
			res.Failed++
			n.logger.Warn("Could not parse auction %s from %s: %v", l.AuctionID, name, err)
			if n.sink != nil {
				if serr := n.sink.Record(l, source, err); serr != nil {
					n.logger.Error("Failed to save bugged auction %s: %v", l.AuctionID, serr)
				}
			}
			continue
		}
		res.Records = append(res.Records, rec)
	}

	n.logger.Info("Parsed %s: %d listings → %d records (skipped %d, failed %d)",
		name, len(snap.Auctions), len(res.Records), res.Skipped, res.Failed)
	return res
}

func (n *Normalizer) normalizeSafe(l *models.RawListing) (rec *models.NormalizedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("%w: panic: %v", models.ErrNormalization, r)
		}
	}()
	return n.Normalize(l)
}

// Normalize decodes one listing's payload and builds its record.
func (n *Normalizer) Normalize(l *models.RawListing) (*models.NormalizedRecord, error) {
	if l.FieldErr != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNormalization, l.FieldErr)
	}
	if l.AuctionID == "" {
		return nil, fmt.Errorf("%w: listing without auction id", models.ErrNormalization)
	}

	tree, err := itemtree.Decode(l.ItemBytes)
	if err != nil {
		return nil, err
	}
	extra := itemtree.FindMap(tree, "ExtraAttributes")
	display := itemtree.FindMap(tree, "display")

	rec := &models.NormalizedRecord{
		Auction: models.Auction{
			AuctionID: l.AuctionID,
			Price:     l.Price,
			Bin:       l.Bin,
			Extra:     map[string]any{},
		},
	}

	level, name := parseName(stringValue(display["Name"]))
	rec.Auction.Name = name

	baseID := stringValue(extra["id"])
	if baseID != nil && *baseID == petCategory {
		pet, err := parsePetInfo(extra["petInfo"])
		if err != nil {
			return nil, err
		}
		rec.Auction.ItemID = pet.Type
		rec.Pet = &models.PetInfo{
			Level:     level,
			Tier:      pet.Tier,
			CandyUsed: pet.candy(),
			HeldItem:  pet.HeldItem,
			Skin:      pet.Skin,
		}
	} else {
		rec.Auction.ItemID = baseID
		if level != nil {
			rec.Pet = &models.PetInfo{Level: level}
		}
	}

	rec.Gems = parseGems(mapValue(extra["gems"]))
	rec.Fishing = parseFishingParts(extra)
	rec.Souls = parseSouls(extra["necromancer_souls"])
	rec.Enchantments = parseEnchantments(mapValue(extra["enchantments"]))
	rec.Runes = parseRunes(mapValue(extra["runes"]))
	for _, name := range stringList(extra["boosters"]) {
		rec.Boosters = append(rec.Boosters, models.Booster{Name: name})
	}
	for _, name := range stringList(extra["ability_scroll"]) {
		rec.AbilityScrolls = append(rec.AbilityScrolls, models.AbilityScroll{Name: name})
	}

	for _, key := range models.ExtraKeys {
		if v, ok := extra[key]; ok && v != nil {
			rec.Auction.Extra[key] = v
		}
	}
	return rec, nil
}

// parseName strips formatting codes and pulls out the "[Lvl N]" token.
// Examples:
//
//	"§6[Lvl 100] §aEnderman" → 100, "Enderman"
//	"§dWithered Hyperion"    → nil, "Withered Hyperion"
func parseName(raw *string) (*int64, *string) {
	if raw == nil || *raw == "" {
		return nil, nil
	}

	colourless := colourRegexp.ReplaceAllString(*raw, "")
	clean := strings.TrimSpace(colourless)

	var level *int64
	if m := levelRegexp.FindStringSubmatch(colourless); len(m) == 2 {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			level = &n
		}
		clean = strings.TrimSpace(strings.Replace(colourless, m[0], "", 1))
	}
	return level, &clean
}

type petInfo struct {
	Type      *string  `json:"type"`
	Tier      *string  `json:"tier"`
	CandyUsed *float64 `json:"candyUsed"`
	HeldItem  *string  `json:"heldItem"`
	Skin      *string  `json:"skin"`
}

func (p *petInfo) candy() *int64 {
	if p.CandyUsed == nil {
		return nil
	}
	n := int64(*p.CandyUsed)
	return &n
}

// parsePetInfo reads the JSON document stored as a string in the petInfo field.
func parsePetInfo(v any) (*petInfo, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return &petInfo{}, nil
	}
	var p petInfo
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("%w: petInfo: %v", models.ErrNormalization, err)
	}
	return &p, nil
}

// parseGems resolves quality and type for each gem slot. Slots without a
// quality are dropped; the type stays nil when it cannot be determined.
func parseGems(bag map[string]any) []models.Gem {
	slots := make([]string, 0, len(bag))
	for slot := range bag {
		if slot == "unlocked_slots" || strings.HasSuffix(slot, "_gem") {
			continue
		}
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	var gems []models.Gem
	for _, slot := range slots {
		var quality *string
		switch info := bag[slot].(type) {
		case string:
			quality = &info
		case map[string]any:
			quality = stringValue(info["quality"])
		}
		if quality == nil || *quality == "" {
			continue
		}

		gemType := stringValue(bag[slot+"_gem"])
		if gemType == nil || *gemType == "" {
			gemType = nil
			prefix, _, _ := strings.Cut(slot, "_")
			if _, ok := models.GemTypes[prefix]; ok {
				gemType = &prefix
			}
		}
		gems = append(gems, models.Gem{Slot: slot, Type: gemType, Quality: *quality})
	}
	return gems
}

func parseFishingParts(extra map[string]any) *models.FishingParts {
	parts := &models.FishingParts{
		Hook:   stringValue(mapValue(extra["hook"])["part"]),
		Line:   stringValue(mapValue(extra["line"])["part"]),
		Sinker: stringValue(mapValue(extra["sinker"])["part"]),
	}
	if parts.Hook == nil && parts.Line == nil && parts.Sinker == nil {
		return nil
	}
	return parts
}

func parseSouls(v any) []models.SoulDrop {
	list, _ := v.([]any)
	var souls []models.SoulDrop
	for _, item := range list {
		soul := mapValue(item)
		drop := models.SoulDrop{
			Mob:      stringValue(soul["mob_id"]),
			Location: stringValue(soul["dropped_mode_id"]),
		}
		if drop.Location != nil && *drop.Location == "dungeon" {
			drop.Instance = stringValue(soul["dropped_instance_id"])
		}
		souls = append(souls, drop)
	}
	return souls
}

func parseEnchantments(bag map[string]any) []models.Enchantment {
	var out []models.Enchantment
	for _, name := range sortedKeys(bag) {
		if lvl, ok := intValue(bag[name]); ok {
			out = append(out, models.Enchantment{Name: name, Level: lvl})
		}
	}
	return out
}

func parseRunes(bag map[string]any) []models.Rune {
	var out []models.Rune
	for _, name := range sortedKeys(bag) {
		if lvl, ok := intValue(bag[name]); ok {
			out = append(out, models.Rune{Name: name, Level: lvl})
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mapValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func stringValue(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func intValue(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// stringList accepts either a list or a single scalar.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
