package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"token_sniper/internal/domain"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := `
feed:
  source_ws_url: ws://127.0.0.1:1/ws
  price_base_url: http://127.0.0.1:1
watchlist:
  path: ` + filepath.Join(dir, "watchlist.json") + `
storage:
  history_db_path: ` + filepath.Join(dir, "history.db") + `
icons:
  enabled: true
  dir: ` + filepath.Join(dir, "icons") + `
logging:
  dir: ` + filepath.Join(dir, "logs") + `
  level: debug
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestBootstrap_Initialize(t *testing.T) {
	dir := t.TempDir()
	b := NewBootstrap(writeConfig(t, dir))

	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer b.Shutdown()

	if b.Storage == nil || b.Watchlist == nil || b.Source == nil || b.Prices == nil {
		t.Error("Core components not initialized")
	}
	if b.Downloader == nil {
		t.Error("Icon downloader should be enabled")
	}
	if b.Discovery == nil || b.Tracker == nil {
		t.Error("Pipeline stages not initialized")
	}
	if _, err := os.Stat(filepath.Join(dir, "icons")); err != nil {
		t.Errorf("Icon directory not created: %v", err)
	}
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("watchlist:\n  max_tracked_tokens: -1\n"), 0644)

	if err := NewBootstrap(path).Initialize(); err == nil {
		t.Error("Expected invalid config to fail bootstrap")
	}
}

func TestBootstrap_RunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	b := NewBootstrap(writeConfig(t, dir))
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run should return nil on cancellation, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if err := b.Shutdown(); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "watchlist.json")); err != nil {
		t.Errorf("Watchlist snapshot should be written: %v", err)
	}
}

func TestBootstrap_DecimalsEncodeAsNumbers(t *testing.T) {
	dir := t.TempDir()
	b := NewBootstrap(writeConfig(t, dir))
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer b.Shutdown()

	initial := decimal.RequireFromString("0.000001")
	payload := domain.TradePayload{
		TrackedAsset: domain.TrackedAsset{ID: "A", InitialPrice: &initial},
		CurrentPrice: decimal.RequireFromString("0.000002"),
		GainPct:      decimal.NewFromInt(100),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	for _, want := range []string{`"currentPrice":0.000002`, `"gainPct":100`, `"initialPrice":0.000001`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected %s in %s", want, data)
		}
	}
}
