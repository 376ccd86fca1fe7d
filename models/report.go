package models

import "github.com/shopspring/decimal"

// ItemCount is one entry of the most-listed items table.
type ItemCount struct {
	ItemID string
	Count  int
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	RunID      string
	Files      int
	Archived   int
	Listings   int
	Normalized int
	Failed     int
	Counts     RowCounts

	// BIN listings with a price > 0 only
	PricedListings int
	AveragePrice   float64
	MinPrice       float64
	MaxPrice       float64
	MostExpensive  *Auction
	TotalTax       decimal.Decimal

	TopItems []ItemCount
}
