package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Source field names, in priority order. Older snapshots used the second name.
var (
	AuctionIDFields = []string{"auction_id", "uuid"}
	PriceFields     = []string{"price", "starting_bid"}
)

// Snapshot is one file as written by the collector.
type Snapshot struct {
	Success     bool          `json:"success"`
	LastUpdated int64         `json:"lastUpdated"`
	Auctions    []*RawListing `json:"auctions"`
}

// Marker returns the snapshot's freshness marker as stored by the change gate.
func (s *Snapshot) Marker() string {
	return strconv.FormatInt(s.LastUpdated, 10)
}

// RawListing holds one marketplace entry exactly as received.
// Raw keeps the original JSON so failed listings can be dumped for inspection.
// FieldErr holds the fields that had an unexpected JSON type; such a listing
// is rejected during normalization instead of failing the whole snapshot.
type RawListing struct {
	AuctionID string
	Price     float64
	Bin       bool
	ItemBytes string
	Raw       json.RawMessage
	FieldErr  error
}

// UnmarshalJSON resolves the id and price through their fallback field names.
// Only a listing that is not a JSON object is an error here.
func (r *RawListing) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	r.Raw = append(json.RawMessage(nil), data...)

	var errs []error
	if raw, ok := ResolveField(fields, AuctionIDFields...); ok {
		if err := json.Unmarshal(raw, &r.AuctionID); err != nil {
			errs = append(errs, fmt.Errorf("auction id: %w", err))
		}
	}
	if raw, ok := ResolveField(fields, PriceFields...); ok {
		if err := json.Unmarshal(raw, &r.Price); err != nil {
			errs = append(errs, fmt.Errorf("price: %w", err))
		}
	}
	if raw, ok := fields["bin"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &r.Bin); err != nil {
			errs = append(errs, fmt.Errorf("bin: %w", err))
		}
	}
	if raw, ok := fields["item_bytes"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &r.ItemBytes); err != nil {
			errs = append(errs, fmt.Errorf("item_bytes: %w", err))
		}
	}
	r.FieldErr = errors.Join(errs...)
	return nil
}

// ResolveField returns the value of the first key that is present and neither
// null nor an empty string nor zero.
func ResolveField(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		switch string(raw) {
		case "null", `""`, "0", "false":
			continue
		}
		return raw, true
	}
	return nil, false
}

// FileSummary is one manifest row describing how a single input file was handled.
type FileSummary struct {
	RunID      string
	File       string
	Listings   int
	Normalized int
	Failed     int
	Counts     RowCounts
	Archived   bool
}
