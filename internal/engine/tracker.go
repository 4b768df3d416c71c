package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"token_sniper/internal/domain"
	"token_sniper/internal/infra"
	"token_sniper/internal/service"

	"github.com/shopspring/decimal"
)

const defaultPriceTimeout = 15 * time.Second

// TrackerOptions wires a Tracker. History is optional.
type TrackerOptions struct {
	Prices       domain.PriceFeed
	Watchlist    *service.Watchlist
	Dispatcher   domain.Dispatcher
	History      domain.HistorySink
	Trigger      domain.GainTrigger
	PriceTimeout time.Duration
	Metrics      *infra.Metrics
	Now          func() time.Time
}

// Tracker samples prices for every tracked asset and fires the gain trigger.
type Tracker struct {
	prices       domain.PriceFeed
	watchlist    *service.Watchlist
	dispatcher   domain.Dispatcher
	history      domain.HistorySink
	trigger      domain.GainTrigger
	priceTimeout time.Duration
	metrics      *infra.Metrics
	now          func() time.Time
	logger       *slog.Logger
}

// NewTracker creates a tracking stage.
func NewTracker(opts TrackerOptions) *Tracker {
	t := &Tracker{
		prices:       opts.Prices,
		watchlist:    opts.Watchlist,
		dispatcher:   opts.Dispatcher,
		history:      opts.History,
		trigger:      opts.Trigger,
		priceTimeout: opts.PriceTimeout,
		metrics:      opts.Metrics,
		now:          opts.Now,
		logger:       slog.Default().With("module", "tracker"),
	}
	if t.priceTimeout <= 0 {
		t.priceTimeout = defaultPriceTimeout
	}
	if t.metrics == nil {
		t.metrics = infra.GlobalMetrics
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// RunCycle samples every asset once in insertion order, then persists the watchlist.
// Per-asset failures are isolated; only a persist failure fails the cycle.
func (t *Tracker) RunCycle(ctx context.Context) error {
	t.metrics.RecordTrackingCycle()

	assets := t.watchlist.All()
	triggered := 0
	for _, asset := range assets {
		if ctx.Err() != nil {
			break
		}
		if t.track(ctx, asset) {
			triggered++
		}
	}

	t.metrics.SetTracked(t.watchlist.Len())

	if err := t.watchlist.Persist(); err != nil {
		t.metrics.RecordPersistFailure()
		return fmt.Errorf("persist watchlist: %w", err)
	}

	t.logger.Info("Tracking cycle complete",
		slog.Int("assets", len(assets)),
		slog.Int("triggered", triggered),
		slog.Int("tracked", t.watchlist.Len()),
		slog.Any("metrics", t.metrics.Snapshot()))
	return nil
}

// track processes one asset and reports whether it triggered.
func (t *Tracker) track(ctx context.Context, asset *domain.TrackedAsset) bool {
	priceCtx, cancel := context.WithTimeout(ctx, t.priceTimeout)
	sample, err := t.prices.FetchPrice(priceCtx, asset.ID)
	cancel()
	if err == nil && !sample.Valid() {
		err = domain.NewPriceError("fetch_price", fmt.Errorf("invalid price %s", sample.Price))
	}
	if err != nil {
		t.metrics.RecordPriceSkip()
		t.logger.Warn("Price unavailable, skipping",
			slog.String("asset", asset.ID),
			slog.Any("error", err))
		return false
	}

	now := t.now()
	updated, ok := t.watchlist.Update(asset.ID, func(a *domain.TrackedAsset) {
		a.Observe(sample.Price, now)
	})
	if !ok {
		// trimmed or retired since the cycle snapshot was taken
		return false
	}
	t.metrics.RecordPriceSample()

	gain, triggered := t.trigger.CheckCondition(updated, sample.Price)
	if triggered {
		t.fire(ctx, updated, sample.Price, gain, now)
	}

	t.appendHistory(ctx, updated, sample.Price, gain, now)
	return triggered
}

// fire dispatches the alert and retires the asset whatever the dispatch outcome.
func (t *Tracker) fire(ctx context.Context, asset *domain.TrackedAsset, price, gain decimal.Decimal, now time.Time) {
	t.metrics.RecordTrigger()
	t.logger.Info("🎯 Gain threshold crossed",
		slog.String("asset", asset.ID),
		slog.String("name", asset.Name),
		slog.String("price", price.String()),
		slog.String("gain_pct", gain.StringFixed(2)),
		slog.String("threshold_pct", t.trigger.ThresholdPct.String()))

	var result domain.DispatchResult
	if t.dispatcher != nil {
		result = t.dispatcher.Send(ctx, asset, price)
	} else {
		result = domain.DispatchResult{Skipped: true}
	}
	if result.Err != nil {
		t.metrics.RecordDispatchFailure()
	}

	t.watchlist.Retire(asset.ID)

	if t.history == nil {
		return
	}
	rec := &domain.AlertRecord{
		AlertID:      result.AlertID,
		AssetID:      asset.ID,
		Name:         asset.Name,
		TriggerPrice: price,
		GainPct:      gain,
		Delivered:    result.Delivered,
		CreatedAt:    now,
	}
	if rec.AlertID == "" {
		rec.AlertID = fmt.Sprintf("%s-%d", asset.ID, now.UnixNano())
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	if err := t.history.RecordAlert(ctx, rec); err != nil {
		t.logger.Warn("Failed to record alert", slog.String("asset", asset.ID), slog.Any("error", err))
	}
}

func (t *Tracker) appendHistory(ctx context.Context, asset *domain.TrackedAsset, price, gain decimal.Decimal, now time.Time) {
	if t.history == nil {
		return
	}
	snap := &domain.PriceSnapshot{
		AssetID:    asset.ID,
		Name:       asset.Name,
		Price:      price,
		GainPct:    gain,
		ObservedAt: now,
	}
	if err := t.history.AppendSnapshot(ctx, snap); err != nil {
		t.logger.Warn("Failed to append price snapshot", slog.String("asset", asset.ID), slog.Any("error", err))
	}
}
