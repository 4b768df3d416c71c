package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SourceFeed produces newly listed assets. Failures wrap ErrFeedUnavailable.
type SourceFeed interface {
	FetchDiscovered(ctx context.Context) ([]RawDiscovery, error)
}

// PriceFeed returns a current price for an asset id. Failures wrap ErrPriceUnavailable.
type PriceFeed interface {
	FetchPrice(ctx context.Context, id string) (PriceSample, error)
}

// Dispatcher forwards a triggered asset downstream. It never fails the caller;
// the result may be ignored.
type Dispatcher interface {
	Send(ctx context.Context, asset *TrackedAsset, triggerPrice decimal.Decimal) DispatchResult
}

// SnapshotStore persists the watchlist as a whole.
type SnapshotStore interface {
	Load() (*WatchlistSnapshot, error)
	Save(snap *WatchlistSnapshot) error
}

// HistorySink is the append-only audit trail consumed by the tracker.
type HistorySink interface {
	AppendSnapshot(ctx context.Context, snap *PriceSnapshot) error
	RecordAlert(ctx context.Context, rec *AlertRecord) error
}
