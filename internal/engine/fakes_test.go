package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"token_sniper/internal/domain"
	"token_sniper/internal/service"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

func mint(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

// record builds a feed record whose discovery price is price (market cap = price * 1e9).
func record(id string, price float64) domain.RawDiscovery {
	return domain.RawDiscovery{
		RawID:     id,
		Name:      "Token " + id,
		MarketCap: decimal.NewFromFloat(price).Mul(decimal.NewFromInt(1_000_000_000)),
	}
}

// fakeClock advances one minute every call.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type fakeFeed struct {
	batches [][]domain.RawDiscovery
	err     error
	calls   int
}

func (f *fakeFeed) FetchDiscovered(ctx context.Context) ([]domain.RawDiscovery, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  []string
}

func newFakePrices() *fakePrices {
	return &fakePrices{prices: map[string]decimal.Decimal{}, errs: map[string]error{}}
}

func (p *fakePrices) set(id string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[id] = decimal.NewFromFloat(price)
	delete(p.errs, id)
}

func (p *fakePrices) fail(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[id] = domain.NewPriceError("fetch_price", errors.New("boom"))
}

func (p *fakePrices) FetchPrice(ctx context.Context, id string) (domain.PriceSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, id)
	if err, ok := p.errs[id]; ok {
		return domain.PriceSample{}, err
	}
	price, ok := p.prices[id]
	if !ok {
		return domain.PriceSample{}, domain.NewPriceError("fetch_price", errors.New("unknown id"))
	}
	return domain.PriceSample{Price: price, ObservedAt: time.Now()}, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	sent   []string
	result domain.DispatchResult
}

func (d *fakeDispatcher) Send(ctx context.Context, asset *domain.TrackedAsset, price decimal.Decimal) domain.DispatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, asset.ID)
	res := d.result
	if res.AlertID == "" {
		res.AlertID = "alert-" + asset.ID
	}
	return res
}

type fakeSink struct {
	mu        sync.Mutex
	snapshots []*domain.PriceSnapshot
	alerts    []*domain.AlertRecord
}

func (s *fakeSink) AppendSnapshot(ctx context.Context, snap *domain.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *fakeSink) RecordAlert(ctx context.Context, rec *domain.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, rec)
	return nil
}

type memStore struct {
	mu      sync.Mutex
	snap    *domain.WatchlistSnapshot
	saveErr error
	saves   int
}

func (m *memStore) Load() (*domain.WatchlistSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, os.ErrNotExist
	}
	return m.snap, nil
}

func (m *memStore) Save(snap *domain.WatchlistSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	c := &domain.WatchlistSnapshot{Assets: map[string]*domain.TrackedAsset{}, Retired: append([]string(nil), snap.Retired...)}
	for id, a := range snap.Assets {
		c.Assets[id] = a.Clone()
	}
	m.snap = c
	return nil
}

func newWatchlist(maxTracked int, store domain.SnapshotStore) *service.Watchlist {
	return service.NewWatchlist(service.WatchlistOptions{
		MaxTracked:     maxTracked,
		PersistenceCap: 300,
		Store:          store,
	})
}
