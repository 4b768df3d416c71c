package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"token_sniper/internal/domain"
)

const (
	DefaultMaxTracked     = 500
	DefaultPersistenceCap = 300
	DefaultRetiredCap     = 5000
)

// WatchlistOptions configures a Watchlist. Zero values fall back to defaults.
type WatchlistOptions struct {
	MaxTracked     int
	PersistenceCap int
	RetiredCap     int
	Store          domain.SnapshotStore
	Logger         *slog.Logger
	Now            func() time.Time
}

type entry struct {
	asset *domain.TrackedAsset
	seq   uint64 // insertion order, tie-break for retention
}

// Watchlist is the bounded, ordered, persisted registry of tracked assets.
// One mutex serializes every mutation including Persist, so a save started by
// one loop never interleaves with an admit or remove from the other.
type Watchlist struct {
	mu      sync.Mutex
	assets  map[string]*entry
	nextSeq uint64

	// ids retired by a trigger; never re-admitted
	retired      map[string]struct{}
	retiredOrder []string

	maxTracked     int
	persistenceCap int
	retiredCap     int
	store          domain.SnapshotStore
	logger         *slog.Logger
	now            func() time.Time
}

// NewWatchlist creates an empty watchlist. Call Load to restore a snapshot.
func NewWatchlist(opts WatchlistOptions) *Watchlist {
	w := &Watchlist{
		assets:         make(map[string]*entry),
		retired:        make(map[string]struct{}),
		maxTracked:     opts.MaxTracked,
		persistenceCap: opts.PersistenceCap,
		retiredCap:     opts.RetiredCap,
		store:          opts.Store,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if w.maxTracked <= 0 {
		w.maxTracked = DefaultMaxTracked
	}
	if w.persistenceCap <= 0 {
		w.persistenceCap = DefaultPersistenceCap
	}
	if w.retiredCap <= 0 {
		w.retiredCap = DefaultRetiredCap
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("module", "watchlist")
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Load replaces the in-memory contents with the durable snapshot.
// Missing or corrupt storage yields an empty watchlist; it is never fatal.
func (w *Watchlist) Load() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.assets = make(map[string]*entry)
	w.retired = make(map[string]struct{})
	w.retiredOrder = nil
	w.nextSeq = 0

	if w.store == nil {
		return
	}

	snap, err := w.store.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.logger.Info("📭 No watchlist snapshot, starting empty")
		} else {
			w.logger.Warn("⚠️ Watchlist snapshot unreadable, starting empty", slog.Any("error", err))
		}
		return
	}

	assets := make([]*domain.TrackedAsset, 0, len(snap.Assets))
	for _, a := range snap.Assets {
		assets = append(assets, a)
	}
	sort.SliceStable(assets, func(i, j int) bool {
		if !assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].CreatedAt.Before(assets[j].CreatedAt)
		}
		return assets[i].ID < assets[j].ID
	})

	// The admission cap also bounds a restored set; keep the newest.
	if len(assets) > w.maxTracked {
		w.logger.Warn("Snapshot exceeds tracked cap, keeping newest",
			slog.Int("loaded", len(assets)),
			slog.Int("cap", w.maxTracked))
		assets = assets[len(assets)-w.maxTracked:]
	}

	for _, a := range assets {
		w.insertLocked(a)
	}
	for _, id := range snap.Retired {
		w.retireLocked(id)
	}

	w.logger.Info("✅ Watchlist loaded",
		slog.Int("tracked", len(w.assets)),
		slog.Int("retired", len(w.retired)))
}

// TryAdmit adds candidate if its id is new and the watchlist is below capacity.
// It reports whether admission happened; the error names the reason when it did not
// (ErrDuplicate, ErrRetired or ErrAtCapacity).
func (w *Watchlist) TryAdmit(candidate *domain.TrackedAsset) (bool, error) {
	if candidate == nil || candidate.ID == "" {
		return false, fmt.Errorf("%w: empty id", domain.ErrMalformedRecord)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.assets[candidate.ID]; ok {
		return false, domain.ErrDuplicate
	}
	if _, ok := w.retired[candidate.ID]; ok {
		return false, domain.ErrRetired
	}
	if len(w.assets) >= w.maxTracked {
		return false, domain.ErrAtCapacity
	}

	w.insertLocked(candidate.Clone())
	return true, nil
}

// Get returns a copy of the asset with the given id.
func (w *Watchlist) Get(id string) (*domain.TrackedAsset, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.assets[id]
	if !ok {
		return nil, false
	}
	return e.asset.Clone(), true
}

// All returns copies of every asset in insertion order. The result is
// detached from the watchlist and safe to iterate while it changes.
func (w *Watchlist) All() []*domain.TrackedAsset {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.sortedLocked(func(a, b *entry) bool { return a.seq < b.seq })
	result := make([]*domain.TrackedAsset, len(entries))
	for i, e := range entries {
		result[i] = e.asset.Clone()
	}
	return result
}

// Len returns the number of tracked assets.
func (w *Watchlist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.assets)
}

// Update applies fn to the stored asset under the lock and returns a copy of the result.
// The id cannot be changed by fn.
func (w *Watchlist) Update(id string, fn func(a *domain.TrackedAsset)) (*domain.TrackedAsset, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.assets[id]
	if !ok {
		return nil, false
	}
	fn(e.asset)
	e.asset.ID = id
	return e.asset.Clone(), true
}

// Remove deletes the asset. Removing an absent id is a no-op.
func (w *Watchlist) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.assets, id)
}

// Retire removes a triggered asset and remembers its id so it is never
// admitted again. Returns false if the asset was not tracked.
func (w *Watchlist) Retire(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.assets[id]
	delete(w.assets, id)
	w.retireLocked(id)
	return ok
}

// IsRetired reports whether id has already triggered.
func (w *Watchlist) IsRetired(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.retired[id]
	return ok
}

// Persist trims to the newest PersistenceCap assets by CreatedAt and writes
// the snapshot. Trimmed assets are dropped from memory as well.
func (w *Watchlist) Persist() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.trimLocked()

	if w.store == nil {
		return nil
	}

	snap := &domain.WatchlistSnapshot{
		Assets:  make(map[string]*domain.TrackedAsset, len(w.assets)),
		Retired: append([]string(nil), w.retiredOrder...),
		SavedAt: w.now(),
	}
	for id, e := range w.assets {
		snap.Assets[id] = e.asset
	}

	if err := w.store.Save(snap); err != nil {
		if !errors.Is(err, domain.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
		}
		return err
	}
	return nil
}

// trimLocked applies ordered retention. Sorting is stable on (CreatedAt, insertion order).
func (w *Watchlist) trimLocked() {
	if len(w.assets) <= w.persistenceCap {
		return
	}

	entries := w.sortedLocked(func(a, b *entry) bool {
		if !a.asset.CreatedAt.Equal(b.asset.CreatedAt) {
			return a.asset.CreatedAt.Before(b.asset.CreatedAt)
		}
		return a.seq < b.seq
	})

	drop := len(entries) - w.persistenceCap
	for _, e := range entries[:drop] {
		delete(w.assets, e.asset.ID)
	}
	w.logger.Debug("Trimmed watchlist to persistence cap",
		slog.Int("dropped", drop),
		slog.Int("cap", w.persistenceCap))
}

func (w *Watchlist) sortedLocked(less func(a, b *entry) bool) []*entry {
	entries := make([]*entry, 0, len(w.assets))
	for _, e := range w.assets {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	return entries
}

func (w *Watchlist) insertLocked(a *domain.TrackedAsset) {
	if a.History == nil {
		a.History = []domain.PricePoint{}
	}
	w.assets[a.ID] = &entry{asset: a, seq: w.nextSeq}
	w.nextSeq++
}

func (w *Watchlist) retireLocked(id string) {
	if _, ok := w.retired[id]; ok {
		return
	}
	w.retired[id] = struct{}{}
	w.retiredOrder = append(w.retiredOrder, id)
	if len(w.retiredOrder) > w.retiredCap {
		oldest := w.retiredOrder[0]
		w.retiredOrder = w.retiredOrder[1:]
		delete(w.retired, oldest)
	}
}
