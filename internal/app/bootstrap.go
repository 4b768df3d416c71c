package app

import (
	"context"
	"errors"
	"log/slog"

	"token_sniper/internal/domain"
	"token_sniper/internal/engine"
	"token_sniper/internal/execution"
	"token_sniper/internal/infra"
	"token_sniper/internal/infra/pumpfun"
	"token_sniper/internal/infra/storage"
	"token_sniper/internal/service"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config     *infra.Config
	Storage    *storage.Storage
	Watchlist  *service.Watchlist
	Source     *pumpfun.SourceFeed
	Prices     *pumpfun.PriceClient
	Dispatcher *execution.TradeDispatcher
	Downloader *infra.IconDownloader

	Discovery *engine.Discovery
	Tracker   *engine.Tracker
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize loads configuration and builds every component.
// Any error here is fatal for the process.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Token Sniper...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// Prices and gains go over the wire and into the snapshot as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.HistoryDBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ History database initialized", slog.String("path", cfg.Storage.HistoryDBPath))

	// 4. Restore Watchlist
	b.Watchlist = service.NewWatchlist(service.WatchlistOptions{
		MaxTracked:     cfg.Watchlist.MaxTrackedTokens,
		PersistenceCap: cfg.Watchlist.PersistenceCap,
		Store:          storage.NewSnapshotFile(cfg.Watchlist.Path),
	})
	b.Watchlist.Load()
	infra.GlobalMetrics.SetTracked(b.Watchlist.Len())

	// 5. Feeds & Dispatcher
	b.Source = pumpfun.NewSourceFeed(cfg.Feed.SourceWSURL, cfg.Feed.SourceBufferSize)
	b.Prices = pumpfun.NewPriceClient(cfg.Feed.PriceBaseURL, cfg.PriceTimeout(), cfg.Feed.PriceRatePerSec)
	b.Dispatcher = execution.NewTradeDispatcher(cfg.Dispatch.TradeEndpoint, cfg.DispatchTimeout())
	if cfg.Dispatch.TradeEndpoint == "" {
		slog.Warn("⚠️ No trade endpoint configured, alerts will only be logged")
	}

	// 6. Icon Downloader (optional)
	var icons engine.IconFetcher
	if cfg.Icons.Enabled {
		downloader, err := infra.NewIconDownloader(cfg.Icons.Dir, cfg.Icons.Size)
		if err != nil {
			return err
		}
		b.Downloader = downloader
		icons = downloader
		slog.Info("✅ Icon downloader ready", slog.String("dir", cfg.Icons.Dir))
	}

	// 7. Pipeline stages
	b.Discovery = engine.NewDiscovery(engine.DiscoveryOptions{
		Feed:      b.Source,
		Watchlist: b.Watchlist,
		Criteria: engine.EntryCriteria{
			Enforce:      cfg.EntryCriteria.Enforce,
			MinMarketCap: cfg.EntryCriteria.MinMarketCap,
			MaxMarketCap: cfg.EntryCriteria.MaxMarketCap,
			MaxHolders:   cfg.EntryCriteria.MaxHolders,
			MinVolume:    cfg.EntryCriteria.MinVolume,
		},
		Validate:    pumpfun.ValidateMint,
		Icons:       icons,
		FeedTimeout: cfg.FeedTimeout(),
	})
	b.Tracker = engine.NewTracker(engine.TrackerOptions{
		Prices:       b.Prices,
		Watchlist:    b.Watchlist,
		Dispatcher:   b.Dispatcher,
		History:      b.Storage,
		Trigger:      domain.NewGainTrigger(cfg.Tracker.GainTriggerPct),
		PriceTimeout: cfg.PriceTimeout(),
	})

	slog.Info("✅ Pipeline ready",
		slog.Int("tracked", b.Watchlist.Len()),
		slog.String("gain_trigger_pct", cfg.Tracker.GainTriggerPct.String()),
		slog.Bool("entry_criteria", cfg.EntryCriteria.Enforce))
	return nil
}

// Run holds the source feed session open and runs both loops until ctx is cancelled.
// The session is released on every return path.
func (b *Bootstrap) Run(ctx context.Context) error {
	discoveryLoop := engine.NewLoop("discovery", b.Config.ScrapeInterval(), b.Config.ErrorCooldown(), b.Discovery.RunCycle)
	trackingLoop := engine.NewLoop("tracker", b.Config.TrackInterval(), b.Config.ErrorCooldown(), b.Tracker.RunCycle)

	return pumpfun.WithSession(ctx, b.Source, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return discoveryLoop.Run(gctx) })
		g.Go(func() error { return trackingLoop.Run(gctx) })
		err := g.Wait()
		b.Discovery.WaitIcons()
		return err
	})
}

// Shutdown flushes the watchlist and closes storage.
func (b *Bootstrap) Shutdown() error {
	var errs []error
	if b.Watchlist != nil {
		if err := b.Watchlist.Persist(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Info("📊 Final metrics", slog.Any("metrics", infra.GlobalMetrics.Snapshot()))
	return errors.Join(errs...)
}
