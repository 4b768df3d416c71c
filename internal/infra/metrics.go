package infra

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics provides lightweight pipeline counters without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Discovery
	discoveryCycles atomic.Uint64
	admitted        atomic.Uint64
	droppedAtCap    atomic.Uint64
	filtered        atomic.Uint64
	malformed       atomic.Uint64

	// Tracking
	trackingCycles atomic.Uint64
	priceSamples   atomic.Uint64
	priceSkips     atomic.Uint64
	triggers       atomic.Uint64

	// Failures
	dispatchFailures atomic.Uint64
	persistFailures  atomic.Uint64
	cycleErrors      atomic.Uint64
	retriableErrors  atomic.Uint64

	// Gauges
	tracked atomic.Int64
}

// GlobalMetrics is the process-wide metrics instance.
var GlobalMetrics = &Metrics{}

func (m *Metrics) RecordDiscoveryCycle() { m.discoveryCycles.Add(1) }
func (m *Metrics) RecordAdmitted() { m.admitted.Add(1) }
func (m *Metrics) RecordDroppedAtCap() { m.droppedAtCap.Add(1) }
func (m *Metrics) RecordFiltered() { m.filtered.Add(1) }
func (m *Metrics) RecordMalformed() { m.malformed.Add(1) }
func (m *Metrics) RecordTrackingCycle() { m.trackingCycles.Add(1) }
func (m *Metrics) RecordPriceSample() { m.priceSamples.Add(1) }
func (m *Metrics) RecordPriceSkip() { m.priceSkips.Add(1) }
func (m *Metrics) RecordTrigger() { m.triggers.Add(1) }
func (m *Metrics) RecordDispatchFailure() { m.dispatchFailures.Add(1) }
func (m *Metrics) RecordPersistFailure() { m.persistFailures.Add(1) }

// RecordCycleError counts a failed cycle. Retriable failures (feed or price
// outages) are also counted on their own.
func (m *Metrics) RecordCycleError(retriable bool) {
	m.cycleErrors.Add(1)
	if retriable {
		m.retriableErrors.Add(1)
	}
}

// SetTracked sets the current watchlist size.
func (m *Metrics) SetTracked(n int) {
	m.tracked.Store(int64(n))
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	DiscoveryCycles  uint64
	Admitted         uint64
	DroppedAtCap     uint64
	Filtered         uint64
	Malformed        uint64
	TrackingCycles   uint64
	PriceSamples     uint64
	PriceSkips       uint64
	Triggers         uint64
	DispatchFailures uint64
	PersistFailures  uint64
	CycleErrors      uint64
	RetriableErrors  uint64
	Tracked          int64
	Timestamp        time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		DiscoveryCycles:  m.discoveryCycles.Load(),
		Admitted:         m.admitted.Load(),
		DroppedAtCap:     m.droppedAtCap.Load(),
		Filtered:         m.filtered.Load(),
		Malformed:        m.malformed.Load(),
		TrackingCycles:   m.trackingCycles.Load(),
		PriceSamples:     m.priceSamples.Load(),
		PriceSkips:       m.priceSkips.Load(),
		Triggers:         m.triggers.Load(),
		DispatchFailures: m.dispatchFailures.Load(),
		PersistFailures:  m.persistFailures.Load(),
		CycleErrors:      m.cycleErrors.Load(),
		RetriableErrors:  m.retriableErrors.Load(),
		Tracked:          m.tracked.Load(),
		Timestamp:        time.Now(),
	}
}

// LogValue implements slog.LogValuer so a snapshot can be logged as a group.
func (s MetricsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("discovery_cycles", s.DiscoveryCycles),
		slog.Uint64("admitted", s.Admitted),
		slog.Uint64("dropped_at_cap", s.DroppedAtCap),
		slog.Uint64("filtered", s.Filtered),
		slog.Uint64("malformed", s.Malformed),
		slog.Uint64("tracking_cycles", s.TrackingCycles),
		slog.Uint64("price_samples", s.PriceSamples),
		slog.Uint64("price_skips", s.PriceSkips),
		slog.Uint64("triggers", s.Triggers),
		slog.Uint64("dispatch_failures", s.DispatchFailures),
		slog.Uint64("persist_failures", s.PersistFailures),
		slog.Uint64("cycle_errors", s.CycleErrors),
		slog.Uint64("retriable_cycle_errors", s.RetriableErrors),
		slog.Int64("tracked", s.Tracked),
	)
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.discoveryCycles, &m.admitted, &m.droppedAtCap, &m.filtered, &m.malformed,
		&m.trackingCycles, &m.priceSamples, &m.priceSkips, &m.triggers,
		&m.dispatchFailures, &m.persistFailures, &m.cycleErrors, &m.retriableErrors,
	} {
		c.Store(0)
	}
	m.tracked.Store(0)
}
