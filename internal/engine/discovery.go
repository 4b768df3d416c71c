package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"token_sniper/internal/domain"
	"token_sniper/internal/infra"
	"token_sniper/internal/service"

	"github.com/shopspring/decimal"
)

const (
	defaultFeedTimeout = 60 * time.Second
	iconTimeout        = 30 * time.Second
	maxIconDownloads   = 5
)

// EntryCriteria filters discovered records before admission. It only applies when Enforce is set.
// Zero bounds are ignored.
type EntryCriteria struct {
	Enforce      bool
	MinMarketCap decimal.Decimal
	MaxMarketCap decimal.Decimal
	MaxHolders   int
	MinVolume    decimal.Decimal
}

// Accepts reports whether rec passes every configured bound.
func (c EntryCriteria) Accepts(rec domain.RawDiscovery) bool {
	if !c.Enforce {
		return true
	}
	if c.MinMarketCap.IsPositive() && rec.MarketCap.LessThan(c.MinMarketCap) {
		return false
	}
	if c.MaxMarketCap.IsPositive() && rec.MarketCap.GreaterThan(c.MaxMarketCap) {
		return false
	}
	if c.MaxHolders > 0 && rec.Holders > c.MaxHolders {
		return false
	}
	if c.MinVolume.IsPositive() && rec.Volume.LessThan(c.MinVolume) {
		return false
	}
	return true
}

// IconFetcher caches a thumbnail for an admitted token.
type IconFetcher interface {
	DownloadIcon(ctx context.Context, id, uri string) (string, error)
}

// DiscoveryOptions wires a Discovery. Feed and Watchlist are required.
type DiscoveryOptions struct {
	Feed        domain.SourceFeed
	Watchlist   *service.Watchlist
	Criteria    EntryCriteria
	Validate    func(id string) error
	Icons       IconFetcher
	FeedTimeout time.Duration
	Metrics     *infra.Metrics
	Now         func() time.Time
}

// Discovery turns source feed records into admitted watchlist entries.
type Discovery struct {
	feed        domain.SourceFeed
	watchlist   *service.Watchlist
	criteria    EntryCriteria
	validate    func(id string) error
	icons       IconFetcher
	feedTimeout time.Duration
	metrics     *infra.Metrics
	now         func() time.Time
	logger      *slog.Logger

	iconSem chan struct{}
	iconWG  sync.WaitGroup
}

// NewDiscovery creates a discovery stage.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	d := &Discovery{
		feed:        opts.Feed,
		watchlist:   opts.Watchlist,
		criteria:    opts.Criteria,
		validate:    opts.Validate,
		icons:       opts.Icons,
		feedTimeout: opts.FeedTimeout,
		metrics:     opts.Metrics,
		now:         opts.Now,
		logger:      slog.Default().With("module", "discovery"),
		iconSem:     make(chan struct{}, maxIconDownloads),
	}
	if d.feedTimeout <= 0 {
		d.feedTimeout = defaultFeedTimeout
	}
	if d.metrics == nil {
		d.metrics = infra.GlobalMetrics
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.validate == nil {
		d.validate = func(id string) error {
			if id == "" {
				return fmt.Errorf("%w: empty id", domain.ErrMalformedRecord)
			}
			return nil
		}
	}
	return d
}

// RunCycle fetches one batch from the feed and admits new assets in order.
// Admission stops at capacity; every admission is persisted before the next.
// Malformed records are skipped and reported together once the batch is done.
func (d *Discovery) RunCycle(ctx context.Context) error {
	d.metrics.RecordDiscoveryCycle()

	fetchCtx, cancel := context.WithTimeout(ctx, d.feedTimeout)
	records, err := d.feed.FetchDiscovered(fetchCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch discovered: %w", err)
	}

	now := d.now()
	var malformed []error
	admitted := 0

	for i, rec := range records {
		id := domain.CanonicalID(rec.RawID)
		if err := d.validate(id); err != nil {
			d.metrics.RecordMalformed()
			d.logger.Warn("Skipping malformed record",
				slog.String("raw_id", rec.RawID),
				slog.Any("error", err))
			malformed = append(malformed, err)
			continue
		}

		if d.watchlist.IsRetired(id) {
			d.logger.Debug("Record already triggered", slog.String("asset", id))
			continue
		}

		if !d.criteria.Accepts(rec) {
			d.metrics.RecordFiltered()
			d.logger.Debug("Record outside entry criteria",
				slog.String("asset", id),
				slog.String("market_cap", rec.MarketCap.String()))
			continue
		}

		asset := domain.NewTrackedAsset(id, rec, now)
		ok, err := d.watchlist.TryAdmit(asset)
		if !ok {
			if errors.Is(err, domain.ErrAtCapacity) {
				dropped := d.countAdmissible(records[i:])
				for range dropped {
					d.metrics.RecordDroppedAtCap()
				}
				d.logger.Warn("⚠️ Watchlist cap reached, skipping rest of batch",
					slog.Int("dropped", dropped),
					slog.Int("unprocessed", len(records)-i),
					slog.Int("tracked", d.watchlist.Len()))
				break
			}
			d.logger.Debug("Record not admitted",
				slog.String("asset", id),
				slog.Any("reason", err))
			continue
		}

		admitted++
		d.metrics.RecordAdmitted()
		d.logger.Info("🆕 Token admitted",
			slog.String("asset", id),
			slog.String("name", asset.Name),
			slog.String("market_cap", rec.MarketCap.String()))

		if err := d.watchlist.Persist(); err != nil {
			d.metrics.RecordPersistFailure()
			return fmt.Errorf("persist after admitting %s: %w", id, err)
		}

		d.fetchIcon(ctx, asset)
	}

	d.metrics.SetTracked(d.watchlist.Len())
	d.logger.Info("Discovery cycle complete",
		slog.Int("received", len(records)),
		slog.Int("admitted", admitted),
		slog.Int("tracked", d.watchlist.Len()))

	return errors.Join(malformed...)
}

// countAdmissible counts records that would have been admitted below capacity.
// Invalid, filtered, tracked and retired ids are not counted.
func (d *Discovery) countAdmissible(records []domain.RawDiscovery) int {
	seen := make(map[string]struct{}, len(records))
	n := 0
	for _, rec := range records {
		id := domain.CanonicalID(rec.RawID)
		if d.validate(id) != nil || !d.criteria.Accepts(rec) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := d.watchlist.Get(id); ok || d.watchlist.IsRetired(id) {
			continue
		}
		n++
	}
	return n
}

// WaitIcons blocks until in-flight icon downloads finish.
func (d *Discovery) WaitIcons() {
	d.iconWG.Wait()
}

// fetchIcon downloads the token icon in the background. Failures are only logged.
func (d *Discovery) fetchIcon(ctx context.Context, asset *domain.TrackedAsset) {
	if d.icons == nil || asset.ImageURI == "" {
		return
	}

	d.iconWG.Add(1)
	go func() {
		defer d.iconWG.Done()
		select {
		case <-ctx.Done():
			return
		case d.iconSem <- struct{}{}: // Acquire
		}
		defer func() { <-d.iconSem }() // Release

		iconCtx, cancel := context.WithTimeout(ctx, iconTimeout)
		defer cancel()

		path, err := d.icons.DownloadIcon(iconCtx, asset.ID, asset.ImageURI)
		if err != nil {
			d.logger.Debug("Icon download failed", slog.String("asset", asset.ID), slog.Any("error", err))
			return
		}
		d.logger.Debug("Icon cached", slog.String("asset", asset.ID), slog.String("path", path))
	}()
}
