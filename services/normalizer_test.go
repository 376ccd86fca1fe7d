package services

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"auction-pipeline/models"
)

func strOf(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestParseName(t *testing.T) {
	tests := []struct {
		raw       string
		wantName  string
		wantLevel int64
	}{
		{"§6[Lvl 100] §aEnderman", "Enderman", 100},
		{"§dWithered Hyperion", "Withered Hyperion", 0},
		{"[Lvl 1] Bee", "Bee", 1},
		{"  Plain Name  ", "Plain Name", 0},
	}
	for _, tt := range tests {
		raw := tt.raw
		level, name := parseName(&raw)
		if strOf(name) != tt.wantName {
			t.Errorf("parseName(%q) name = %q; want %q", tt.raw, strOf(name), tt.wantName)
		}
		var got int64
		if level != nil {
			got = *level
		}
		if got != tt.wantLevel {
			t.Errorf("parseName(%q) level = %d; want %d", tt.raw, got, tt.wantLevel)
		}
	}

	if level, name := parseName(nil); level != nil || name != nil {
		t.Error("missing name should stay nil")
	}
}

func TestNormalizePet(t *testing.T) {
	n := NewNormalizer(newTestLogger(), nil, true)
	l := &models.RawListing{
		AuctionID: "pet-1",
		Price:     5_000_000,
		Bin:       true,
		ItemBytes: itemBlob("§6[Lvl 100] §aEnderman", map[string]any{
			"id":      "PET",
			"petInfo": `{"type":"ENDERMAN","tier":"LEGENDARY","candyUsed":0,"heldItem":"PET_ITEM_TIER_BOOST"}`,
		}),
	}

	rec, err := n.Normalize(l)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if strOf(rec.Auction.Name) != "Enderman" || strOf(rec.Auction.ItemID) != "ENDERMAN" {
		t.Errorf("name/item: %q %q", strOf(rec.Auction.Name), strOf(rec.Auction.ItemID))
	}
	p := rec.Pet
	if p == nil {
		t.Fatal("pet info missing")
	}
	if p.Level == nil || *p.Level != 100 || strOf(p.Tier) != "LEGENDARY" || p.CandyUsed == nil || *p.CandyUsed != 0 {
		t.Errorf("unexpected pet: %+v", p)
	}
	if strOf(p.HeldItem) != "PET_ITEM_TIER_BOOST" || p.Skin != nil {
		t.Errorf("held item / skin: %q %v", strOf(p.HeldItem), p.Skin)
	}
}

func TestNormalizeInvalidPetInfo(t *testing.T) {
	n := NewNormalizer(newTestLogger(), nil, true)
	l := &models.RawListing{
		AuctionID: "pet-2",
		ItemBytes: itemBlob("[Lvl 5] Bee", map[string]any{"id": "PET", "petInfo": "{not json"}),
	}
	if _, err := n.Normalize(l); !errors.Is(err, models.ErrNormalization) {
		t.Errorf("got %v, want ErrNormalization", err)
	}
}

func TestNormalizeGems(t *testing.T) {
	n := NewNormalizer(newTestLogger(), nil, true)
	l := &models.RawListing{
		AuctionID: "gem-1",
		ItemBytes: itemBlob("Divan's Drill", map[string]any{
			"id": "DIVAN_DRILL",
			"gems": map[string]any{
				"COMBAT_0":       "FINE",
				"COMBAT_0_gem":   "JASPER",
				"RUBY_0":         map[string]any{"quality": "PERFECT", "uuid": "x"},
				"UNIVERSAL_0":    "FLAWED",
				"JADE_1":         map[string]any{"uuid": "no-quality"},
				"unlocked_slots": []any{"COMBAT_0"},
			},
		}),
	}

	rec, err := n.Normalize(l)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	jasper, ruby := "JASPER", "RUBY"
	want := []models.Gem{
		{Slot: "COMBAT_0", Type: &jasper, Quality: "FINE"},
		{Slot: "RUBY_0", Type: &ruby, Quality: "PERFECT"},
		{Slot: "UNIVERSAL_0", Quality: "FLAWED"},
	}
	if !reflect.DeepEqual(rec.Gems, want) {
		t.Errorf("gems:\n got %+v\nwant %+v", rec.Gems, want)
	}
}

func TestNormalizeAttributeGroups(t *testing.T) {
	n := NewNormalizer(newTestLogger(), nil, true)
	l := &models.RawListing{
		AuctionID: "rod-1",
		Price:     42,
		Bin:       true,
		ItemBytes: itemBlob("§5Rod of the Sea", map[string]any{
			"id":           "ROD_OF_THE_SEA",
			"hook":         map[string]any{"part": "COMMON_HOOK", "donated_museum": int64(0)},
			"sinker":       map[string]any{"part": "JUNK_SINKER"},
			"enchantments": map[string]any{"lure": int64(6), "angler": int64(6)},
			"runes":        map[string]any{"MUSIC": int64(3)},
			"boosters":     "sweep",
			"necromancer_souls": []any{
				map[string]any{"mob_id": "ZOMBIE", "dropped_mode_id": "dungeon", "dropped_instance_id": "F7"},
				map[string]any{"mob_id": "WOLF", "dropped_mode_id": "hub", "dropped_instance_id": "ignored"},
			},
			"modifier":   "salty",
			"not_listed": "dropped",
		}),
	}

	rec, err := n.Normalize(l)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if rec.Fishing == nil || strOf(rec.Fishing.Hook) != "COMMON_HOOK" || rec.Fishing.Line != nil || strOf(rec.Fishing.Sinker) != "JUNK_SINKER" {
		t.Errorf("fishing parts: %+v", rec.Fishing)
	}
	wantEnch := []models.Enchantment{{Name: "angler", Level: 6}, {Name: "lure", Level: 6}}
	if !reflect.DeepEqual(rec.Enchantments, wantEnch) {
		t.Errorf("enchantments: %+v", rec.Enchantments)
	}
	if !reflect.DeepEqual(rec.Runes, []models.Rune{{Name: "MUSIC", Level: 3}}) {
		t.Errorf("runes: %+v", rec.Runes)
	}
	if !reflect.DeepEqual(rec.Boosters, []models.Booster{{Name: "sweep"}}) {
		t.Errorf("boosters: %+v", rec.Boosters)
	}
	if len(rec.Souls) != 2 || strOf(rec.Souls[0].Instance) != "F7" || rec.Souls[1].Instance != nil {
		t.Errorf("souls: %+v", rec.Souls)
	}
	if rec.Pet != nil {
		t.Error("no pet expected without a level token")
	}
	if rec.Auction.Extra["modifier"] != "salty" {
		t.Errorf("extra modifier: %v", rec.Auction.Extra["modifier"])
	}
	if _, ok := rec.Auction.Extra["not_listed"]; ok {
		t.Error("unknown keys must not be copied")
	}
	if _, ok := rec.Auction.Extra["enchantments"]; ok {
		t.Error("handled keys must not be copied")
	}
}

func TestNormalizeEmptyAttributes(t *testing.T) {
	n := NewNormalizer(newTestLogger(), nil, true)
	l := &models.RawListing{
		AuctionID: "bare",
		ItemBytes: itemBlob("Dirt", map[string]any{"id": "DIRT"}),
	}
	rec, err := n.Normalize(l)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Fishing != nil || rec.Pet != nil || len(rec.Gems) != 0 || len(rec.Souls) != 0 || len(rec.Auction.Extra) != 0 {
		t.Errorf("expected no sub-entities: %+v", rec)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := NewNormalizer(newTestLogger(), nil, true)
	l := &models.RawListing{AuctionID: "det", Price: 1, Bin: true, ItemBytes: swordBlob()}

	first, err := n.Normalize(l)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := n.Normalize(l)
		if err != nil {
			t.Fatalf("Normalize #%d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestNormalizeSnapshotContainsFailures(t *testing.T) {
	sink := &captureSink{}
	n := NewNormalizer(newTestLogger(), sink, true)
	snap := &models.Snapshot{
		LastUpdated: 1,
		Auctions: []*models.RawListing{
			{AuctionID: "good", Price: 10, Bin: true, ItemBytes: swordBlob()},
			{AuctionID: "bad", Price: 10, Bin: true, ItemBytes: "!!not base64"},
			{AuctionID: "", Price: 10, Bin: true, ItemBytes: swordBlob()},
			{AuctionID: "auction", Price: 10, Bin: false, ItemBytes: swordBlob()},
			nil,
		},
	}

	res := n.NormalizeSnapshot("/in/auctions_1.json", snap)
	if len(res.Records) != 1 || res.Records[0].Auction.AuctionID != "good" {
		t.Fatalf("records: %+v", res.Records)
	}
	if res.Failed != 2 || res.Skipped != 1 {
		t.Errorf("failed=%d skipped=%d; want 2 and 1", res.Failed, res.Skipped)
	}
	if !reflect.DeepEqual(sink.ids, []string{"bad", ""}) {
		t.Errorf("error sink got %v", sink.ids)
	}

	all := NewNormalizer(newTestLogger(), nil, false).NormalizeSnapshot("x.json", snap)
	if len(all.Records) != 2 || all.Skipped != 0 {
		t.Errorf("non-BIN listings should be kept when not skipping: %d records", len(all.Records))
	}
}

func TestNormalizeSnapshotRejectsBadFieldTypes(t *testing.T) {
	var snap models.Snapshot
	raw := `{"lastUpdated":1,"auctions":[
		{"auction_id":"ok","price":5,"bin":true,"item_bytes":"` + swordBlob() + `"},
		{"auction_id":"legacy","bin":false,"item_bytes":{"type":0,"data":"H4sI"}},
		{"auction_id":"flag","bin":"true","item_bytes":"` + swordBlob() + `"}
	]}`
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("snapshot with bad field types should still decode: %v", err)
	}

	sink := &captureSink{}
	res := NewNormalizer(newTestLogger(), sink, true).NormalizeSnapshot("auctions_1.json", &snap)
	if len(res.Records) != 1 || res.Records[0].Auction.AuctionID != "ok" {
		t.Fatalf("records: %+v", res.Records)
	}
	if res.Failed != 2 || res.Skipped != 0 {
		t.Errorf("failed=%d skipped=%d; a listing with bad fields must fail, not be skipped", res.Failed, res.Skipped)
	}
	if !reflect.DeepEqual(sink.ids, []string{"legacy", "flag"}) {
		t.Errorf("error sink got %v", sink.ids)
	}
	if _, err := NewNormalizer(newTestLogger(), nil, false).Normalize(snap.Auctions[2]); !errors.Is(err, models.ErrNormalization) {
		t.Errorf("Normalize: got %v, want ErrNormalization", err)
	}
}
