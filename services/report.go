package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"auction-pipeline/models"
	"auction-pipeline/utils"
)

const topItemsLimit = 5

type taxTier struct {
	below decimal.Decimal
	rate  decimal.Decimal
}

// Auction house fee tiers: a sale is taxed at the rate of the first tier whose
// bound it stays below; anything above the last bound pays topRate.
var (
	taxTiers = []taxTier{
		{decimal.NewFromInt(1_000_000), decimal.Zero},
		{decimal.NewFromInt(10_000_000), decimal.RequireFromString("0.01")},
		{decimal.NewFromInt(100_000_000), decimal.RequireFromString("0.02")},
	}
	topRate = decimal.RequireFromString("0.025")
)

// AuctionTax returns the fee charged on a sale at the given price.
func AuctionTax(price float64) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	if p.Sign() <= 0 {
		return decimal.Zero
	}
	rate := topRate
	for _, tier := range taxTiers {
		if p.LessThan(tier.below) {
			rate = tier.rate
			break
		}
	}
	return p.Mul(rate).Round(2)
}

// NetPrice is what the seller receives after the fee.
func NetPrice(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Sub(AuctionTax(price)).Round(2)
}

type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate builds the run report from the per-file summaries and the records
// that were normalized during the run.
func (s *ReportService) Generate(runID string, summaries []*models.FileSummary, records []*models.NormalizedRecord) *models.RunReport {
	report := &models.RunReport{
		RunID:    runID,
		Counts:   models.RowCounts{},
		TotalTax: decimal.Zero,
	}

	for _, sum := range summaries {
		report.Files++
		report.Listings += sum.Listings
		report.Normalized += sum.Normalized
		report.Failed += sum.Failed
		if sum.Archived {
			report.Archived++
		}
		report.Counts.Add(sum.Counts)
	}

	if len(records) == 0 {
		return report
	}

	items := make(map[string]int)
	var total float64
	for _, rec := range records {
		a := &rec.Auction
		if a.ItemID != nil {
			items[*a.ItemID]++
		}
		if !a.Bin || a.Price <= 0 {
			continue
		}

		if report.PricedListings == 0 || a.Price < report.MinPrice {
			report.MinPrice = a.Price
		}
		if report.PricedListings == 0 || a.Price > report.MaxPrice {
			report.MaxPrice = a.Price
			report.MostExpensive = a
		}
		report.PricedListings++
		total += a.Price
		report.TotalTax = report.TotalTax.Add(AuctionTax(a.Price))
	}
	if report.PricedListings > 0 {
		report.AveragePrice = round2(total / float64(report.PricedListings))
	}

	for id, n := range items {
		report.TopItems = append(report.TopItems, models.ItemCount{ItemID: id, Count: n})
	}
	sort.Slice(report.TopItems, func(i, j int) bool {
		if report.TopItems[i].Count != report.TopItems[j].Count {
			return report.TopItems[i].Count > report.TopItems[j].Count
		}
		return report.TopItems[i].ItemID < report.TopItems[j].ItemID
	})
	if len(report.TopItems) > topItemsLimit {
		report.TopItems = report.TopItems[:topItemsLimit]
	}

	return report
}

func (s *ReportService) Print(r *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 AUCTION INGEST REPORT\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Run id              : %s\n", r.RunID)
	fmt.Printf("  Files (archived)    : \033[1m%d (%d)\033[0m\n", r.Files, r.Archived)
	fmt.Printf("  Listings            : \033[1m%d\033[0m\n", r.Listings)
	fmt.Printf("  Normalized / failed : \033[1m%d / %d\033[0m\n", r.Normalized, r.Failed)
	fmt.Println()

	fmt.Printf("\033[1;33m  Rows inserted\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, table := range models.Tables {
		fmt.Printf("  %-18s %d\n", table, r.Counts[table])
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  BIN Prices\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Printf("  Average price : \033[1;32m%.2f\033[0m\n", r.AveragePrice)
		fmt.Printf("  Minimum price : \033[1;32m%.2f\033[0m\n", r.MinPrice)
		fmt.Printf("  Maximum price : \033[1;32m%.2f\033[0m\n", r.MaxPrice)
		fmt.Printf("  Total tax     : \033[1;32m%s\033[0m\n", r.TotalTax.StringFixed(2))
	} else {
		fmt.Printf("  No price data available\n")
	}
	fmt.Println()

	if a := r.MostExpensive; a != nil {
		fmt.Printf("\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  %s\n", truncate(deref(a.Name), 50))
		fmt.Printf("  Auction : %s\n", a.AuctionID)
		fmt.Printf("  Price   : \033[1;31m%.2f\033[0m\n", a.Price)
		fmt.Println()
	}

	fmt.Printf("\033[1;33m  Most Listed Items\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.TopItems) == 0 {
		fmt.Printf("  No item data\n")
	}
	for i, it := range r.TopItems {
		fmt.Printf("  \033[1m%d.\033[0m %-40s %d\n", i+1, truncate(it.ItemID, 38), it.Count)
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

// truncate shortens s to max runes, so item names with symbols stay valid UTF-8.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
