package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// pump.fun tokens are minted with a fixed supply of one billion units,
// so a market cap divided by 1e9 approximates the unit price.
var tokenSupply = decimal.NewFromInt(1_000_000_000)

// presentationSuffixes are appended to mint ids by the listing page
// depending on which panel the token was rendered in.
var presentationSuffixes = []string{"-latest", "-featured"}

// PricePoint is a single observed price of a tracked asset.
type PricePoint struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"time"`
}

// RawDiscovery is one record produced by a source feed before normalization.
type RawDiscovery struct {
	RawID       string          `json:"mint"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	MarketCap   decimal.Decimal `json:"marketCap"`
	Volume      decimal.Decimal `json:"volume"`
	Holders     int             `json:"holders"`
	AgeLabel    string          `json:"age"`
	ImageURI    string          `json:"uri,omitempty"`
}

// TrackedAsset is the unit of state held by the watchlist.
type TrackedAsset struct {
	ID                  string           `json:"address"`
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	AgeLabel            string           `json:"ageText,omitempty"`
	ImageURI            string           `json:"imageUri,omitempty"`
	DiscoveredMarketCap decimal.Decimal  `json:"marketCap"`
	DiscoveredVolume    decimal.Decimal  `json:"volume"`
	HolderCount         int              `json:"holders"`
	CreatedAt           time.Time        `json:"createdAt"`
	InitialPrice        *decimal.Decimal `json:"initialPrice"`
	History             []PricePoint     `json:"history"`
}

// CanonicalID strips presentational suffixes and surrounding whitespace from a raw id.
func CanonicalID(raw string) string {
	id := strings.TrimSpace(raw)
	for _, suffix := range presentationSuffixes {
		id = strings.ReplaceAll(id, suffix, "")
	}
	return id
}

// PriceFromMarketCap approximates a unit price from a market cap.
func PriceFromMarketCap(marketCap decimal.Decimal) decimal.Decimal {
	return marketCap.Div(tokenSupply)
}

// NewTrackedAsset builds a freshly discovered asset.
// A non-positive market cap leaves InitialPrice unset so the first price sample fills it.
func NewTrackedAsset(id string, rec RawDiscovery, now time.Time) *TrackedAsset {
	asset := &TrackedAsset{
		ID:                  id,
		Name:                rec.Name,
		Description:         rec.Description,
		AgeLabel:            rec.AgeLabel,
		ImageURI:            rec.ImageURI,
		DiscoveredMarketCap: rec.MarketCap,
		DiscoveredVolume:    rec.Volume,
		HolderCount:         rec.Holders,
		CreatedAt:           now,
		History:             []PricePoint{},
	}
	if rec.MarketCap.IsPositive() {
		price := PriceFromMarketCap(rec.MarketCap)
		asset.InitialPrice = &price
	}
	return asset
}

// Clone returns a deep copy. Callers outside the watchlist only ever see clones.
func (a *TrackedAsset) Clone() *TrackedAsset {
	c := *a
	if a.InitialPrice != nil {
		p := *a.InitialPrice
		c.InitialPrice = &p
	}
	c.History = make([]PricePoint, len(a.History))
	copy(c.History, a.History)
	return &c
}

// Observe appends a price sample and fills InitialPrice if it is still unknown.
func (a *TrackedAsset) Observe(price decimal.Decimal, at time.Time) {
	a.History = append(a.History, PricePoint{Price: price, ObservedAt: at})
	if a.InitialPrice == nil || !a.InitialPrice.IsPositive() {
		p := price
		a.InitialPrice = &p
	}
}

// GainPct returns the percentage change of price relative to InitialPrice.
// ok is false when no usable baseline exists.
func (a *TrackedAsset) GainPct(price decimal.Decimal) (gain decimal.Decimal, ok bool) {
	if a.InitialPrice == nil || !a.InitialPrice.IsPositive() {
		return decimal.Zero, false
	}
	base := *a.InitialPrice
	return price.Sub(base).Div(base).Mul(decimal.NewFromInt(100)), true
}

// PriceSample is a price reading returned by a price feed.
type PriceSample struct {
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Valid reports whether the sample carries a usable price.
func (s PriceSample) Valid() bool {
	return s.Price.IsPositive()
}

// WatchlistSnapshot is the durable form of the watchlist.
type WatchlistSnapshot struct {
	Assets  map[string]*TrackedAsset `json:"assets"`
	Retired []string                 `json:"retired,omitempty"`
	SavedAt time.Time                `json:"saved_at"`
}
