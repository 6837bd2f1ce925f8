// Package historystore persists hot-reload history as an audit-only
// mirror of the in-memory capped list the hotreload.Watcher keeps: every
// recorded Entry is also written through to a sqlite-backed table so an
// operator can inspect reload history across restarts, without the
// pipeline itself ever reading it back at startup.
package historystore

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loquat-fw/loquat/internal/hotreload"
)

// ReloadHistoryEntry is the gorm model backing the reload_history_entries
// table, mirroring hotreload.Entry plus a generated primary key.
type ReloadHistoryEntry struct {
	ID        string `gorm:"primaryKey"`
	Component string `gorm:"index"`
	Path      string
	Attempts  int
	Success   bool
	Error     string
	At        time.Time `gorm:"index"`
}

// Store wraps a gorm.DB opened against an embedded sqlite file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// migrates the reload_history_entries table.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	if err := db.AutoMigrate(&ReloadHistoryEntry{}); err != nil {
		return nil, fmt.Errorf("migrating history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record writes e through to the store, generating a fresh ULID
// identifier for it. ULIDs sort lexicographically by their millisecond
// timestamp; two entries recorded within the same millisecond carry
// random entropy and are not ordered relative to each other.
func (s *Store) Record(ctx context.Context, e hotreload.Entry) error {
	row := ReloadHistoryEntry{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		Component: e.Component,
		Path:      e.Path,
		Attempts:  e.Attempts,
		Success:   e.Success,
		Error:     e.Error,
		At:        e.At,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("recording reload history entry: %w", err)
	}
	return nil
}

// ForComponent returns every persisted entry for component, most recent
// first.
func (s *Store) ForComponent(ctx context.Context, component string) ([]ReloadHistoryEntry, error) {
	var rows []ReloadHistoryEntry
	err := s.db.WithContext(ctx).
		Where("component = ?", component).
		Order("at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying reload history: %w", err)
	}
	return rows, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
