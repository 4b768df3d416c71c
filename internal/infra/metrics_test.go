package infra

import (
	"testing"
)

func TestMetrics_Discovery(t *testing.T) {
	m := &Metrics{}

	m.RecordDiscoveryCycle()
	m.RecordAdmitted()
	m.RecordAdmitted()
	m.RecordDroppedAtCap()
	m.RecordMalformed()

	snap := m.Snapshot()

	if snap.DiscoveryCycles != 1 {
		t.Errorf("Expected 1 cycle, got %d", snap.DiscoveryCycles)
	}
	if snap.Admitted != 2 {
		t.Errorf("Expected 2 admitted, got %d", snap.Admitted)
	}
	if snap.DroppedAtCap != 1 || snap.Malformed != 1 {
		t.Errorf("Unexpected drop counters: %+v", snap)
	}
}

func TestMetrics_Tracking(t *testing.T) {
	m := &Metrics{}

	m.RecordTrackingCycle()
	m.RecordPriceSample()
	m.RecordPriceSkip()
	m.RecordTrigger()
	m.RecordDispatchFailure()
	m.SetTracked(3)

	snap := m.Snapshot()
	if snap.Triggers != 1 || snap.DispatchFailures != 1 {
		t.Errorf("Unexpected trigger counters: %+v", snap)
	}
	if snap.Tracked != 3 {
		t.Errorf("Expected 3 tracked, got %d", snap.Tracked)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordAdmitted()
	m.RecordCycleError(true)
	m.RecordPersistFailure()
	m.SetTracked(5)

	m.Reset()
	snap := m.Snapshot()

	if snap.Admitted != 0 {
		t.Error("Expected 0 admitted after reset")
	}
	if snap.CycleErrors != 0 || snap.PersistFailures != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.Tracked != 0 {
		t.Error("Expected 0 tracked after reset")
	}
}

func TestMetrics_CycleErrors(t *testing.T) {
	m := &Metrics{}

	m.RecordCycleError(true)
	m.RecordCycleError(false)
	m.RecordCycleError(false)

	snap := m.Snapshot()
	if snap.CycleErrors != 3 {
		t.Errorf("Expected 3 cycle errors, got %d", snap.CycleErrors)
	}
	if snap.RetriableErrors != 1 {
		t.Errorf("Expected 1 retriable error, got %d", snap.RetriableErrors)
	}
}
