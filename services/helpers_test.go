package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"auction-pipeline/itemtree/nbttest"
	"auction-pipeline/models"
	"auction-pipeline/storage"
	"auction-pipeline/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger() }

// itemBlob encodes a single-item payload shaped like the marketplace's.
func itemBlob(name string, extra map[string]any) string {
	return nbttest.MustEncode(map[string]any{
		"i": []any{
			map[string]any{
				"id":    int64(276),
				"Count": int64(1),
				"tag": map[string]any{
					"display":         map[string]any{"Name": name},
					"ExtraAttributes": extra,
				},
			},
		},
	})
}

func swordBlob() string {
	return itemBlob("§dWithered Hyperion", map[string]any{
		"id":               "HYPERION",
		"modifier":         "withered",
		"hot_potato_count": int64(15),
		"enchantments":     map[string]any{"sharpness": int64(6), "giant_killer": int64(7)},
		"ability_scroll":   []any{"IMPLOSION_SCROLL", "SHADOW_WARP_SCROLL"},
	})
}

// captureSink records failed listing ids instead of writing files.
type captureSink struct {
	mu  sync.Mutex
	ids []string
}

func (c *captureSink) Record(l *models.RawListing, _ string, _ error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, l.AuctionID)
	return nil
}

func writeSnapshot(t *testing.T, dir, name string, lastUpdated int64, auctions []map[string]any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"success":     true,
		"lastUpdated": lastUpdated,
		"auctions":    auctions,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func listingJSON(id string, price float64, blob string) map[string]any {
	return map[string]any{"uuid": id, "starting_bid": price, "bin": true, "item_bytes": blob}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(storage.SQLite, "file::memory:?_foreign_keys=on", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(context.Background(), db, storage.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
