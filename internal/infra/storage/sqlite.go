package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"token_sniper/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the append-only historical sink backed by SQLite.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite history database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	// Auto Migration
	if err := db.AutoMigrate(&domain.PriceSnapshot{}, &domain.AlertRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Price Snapshots
// ======================================================================================

// AppendSnapshot inserts one audit row. Rows are never updated or trimmed.
func (s *Storage) AppendSnapshot(ctx context.Context, snap *domain.PriceSnapshot) error {
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("append snapshot %s: %w", snap.AssetID, err)
	}
	return nil
}

// SnapshotsFor returns the audit trail of one asset in observation order.
func (s *Storage) SnapshotsFor(ctx context.Context, assetID string) ([]domain.PriceSnapshot, error) {
	var snaps []domain.PriceSnapshot
	err := s.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("observed_at ASC, id ASC").
		Find(&snaps).Error
	return snaps, err
}

// ======================================================================================
// Alert Records
// ======================================================================================

// RecordAlert stores the outcome of a dispatch attempt.
func (s *Storage) RecordAlert(ctx context.Context, rec *domain.AlertRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("record alert %s: %w", rec.AssetID, err)
	}
	return nil
}

// RecentAlerts returns up to limit alert records, newest first.
func (s *Storage) RecentAlerts(ctx context.Context, limit int) ([]domain.AlertRecord, error) {
	var recs []domain.AlertRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

var _ domain.HistorySink = (*Storage)(nil)
