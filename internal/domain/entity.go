package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one append-only audit row written by the tracker.
type PriceSnapshot struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	AssetID    string          `gorm:"index" json:"asset_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `gorm:"type:text" json:"price"`
	GainPct    decimal.Decimal `gorm:"type:text" json:"gain_pct"`
	ObservedAt time.Time       `gorm:"index" json:"observed_at"`
}

// AlertRecord stores the outcome of a trigger dispatch.
type AlertRecord struct {
	AlertID      string          `gorm:"primaryKey" json:"alert_id"`
	AssetID      string          `gorm:"index" json:"asset_id"`
	Name         string          `json:"name"`
	TriggerPrice decimal.Decimal `gorm:"type:text" json:"trigger_price"`
	GainPct      decimal.Decimal `gorm:"type:text" json:"gain_pct"`
	Delivered    bool            `json:"delivered"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}
