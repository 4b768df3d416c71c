package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"token_sniper/internal/domain"
)

// SnapshotFile keeps the watchlist as a single JSON document that is fully
// rewritten on every save.
type SnapshotFile struct {
	path string
}

// NewSnapshotFile creates a snapshot store for the given file path.
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// Path returns the snapshot file location.
func (sf *SnapshotFile) Path() string {
	return sf.path
}

// Save writes the snapshot to a temp file and renames it over the previous one,
// so a crash mid-write never leaves a truncated watchlist behind.
func (sf *SnapshotFile) Save(snap *domain.WatchlistSnapshot) error {
	dir := filepath.Dir(sf.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create snapshot dir: %v", domain.ErrPersistenceFailure, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal snapshot: %v", domain.ErrPersistenceFailure, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(sf.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrPersistenceFailure, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write snapshot: %v", domain.ErrPersistenceFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close snapshot: %v", domain.ErrPersistenceFailure, err)
	}
	if err := os.Rename(tmpName, sf.path); err != nil {
		return fmt.Errorf("%w: replace snapshot: %v", domain.ErrPersistenceFailure, err)
	}

	slog.Debug("Snapshot saved",
		slog.Int("assets", len(snap.Assets)),
		slog.String("path", sf.path))

	return nil
}

// Load reads the snapshot from disk. A missing file returns an error matching
// os.ErrNotExist; unreadable or malformed content returns ErrPersistenceFailure.
// The legacy layout (a bare id -> asset object) is accepted.
func (sf *SnapshotFile) Load() (*domain.WatchlistSnapshot, error) {
	data, err := os.ReadFile(sf.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read snapshot: %v", domain.ErrPersistenceFailure, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: unmarshal snapshot: %v", domain.ErrPersistenceFailure, err)
	}

	var snap domain.WatchlistSnapshot
	if _, ok := top["assets"]; ok {
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("%w: unmarshal snapshot: %v", domain.ErrPersistenceFailure, err)
		}
	} else {
		if err := json.Unmarshal(data, &snap.Assets); err != nil {
			return nil, fmt.Errorf("%w: unmarshal legacy snapshot: %v", domain.ErrPersistenceFailure, err)
		}
	}
	if snap.Assets == nil {
		snap.Assets = make(map[string]*domain.TrackedAsset)
	}

	// Keys are authoritative for ids; older files carried the id only as the key.
	for id, asset := range snap.Assets {
		if asset == nil {
			delete(snap.Assets, id)
			continue
		}
		if asset.ID == "" {
			asset.ID = id
		}
		if asset.History == nil {
			asset.History = []domain.PricePoint{}
		}
	}

	slog.Info("Snapshot loaded",
		slog.Int("assets", len(snap.Assets)),
		slog.String("path", sf.path))

	return &snap, nil
}

var _ domain.SnapshotStore = (*SnapshotFile)(nil)
