package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GainTrigger is the rule that retires an asset once its gain crosses a threshold.
type GainTrigger struct {
	ThresholdPct decimal.Decimal `json:"threshold_pct"`
}

// NewGainTrigger creates a trigger for the given percentage threshold.
func NewGainTrigger(thresholdPct decimal.Decimal) GainTrigger {
	return GainTrigger{ThresholdPct: thresholdPct}
}

// CheckCondition reports the gain of price over the asset's baseline and whether it triggers.
// Returns false when the asset has no usable initial price.
func (g GainTrigger) CheckCondition(asset *TrackedAsset, price decimal.Decimal) (decimal.Decimal, bool) {
	gain, ok := asset.GainPct(price)
	if !ok {
		return decimal.Zero, false
	}
	return gain, gain.GreaterThanOrEqual(g.ThresholdPct)
}

// DispatchResult describes one delivery attempt. It is informational only:
// the tracker retires the asset whatever the outcome.
type DispatchResult struct {
	AlertID    string
	Delivered  bool
	Skipped    bool // no endpoint configured
	StatusCode int
	Err        error
}

// TradePayload is the body posted to the downstream trade endpoint.
type TradePayload struct {
	TrackedAsset
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	GainPct      decimal.Decimal `json:"gainPct"`
	AlertID      string          `json:"alertId"`
	TriggeredAt  time.Time       `json:"triggeredAt"`
}
