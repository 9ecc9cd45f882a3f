// Package gormstore persists allocator and trailing-stop state in SQLite
// through Gorm, so bucket ledgers and ratcheted stops survive restarts.
package gormstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"tiller/internal/allocator"
	"tiller/internal/store/model"
	"tiller/internal/strategy/trail"
)

const allocatorRowID = 1

type Store struct {
	db *gorm.DB
}

// Open creates or opens the state database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: state db path required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// The mandated CGO_ENABLED=0 build cannot use the default mattn driver,
	// so route the gorm sqlite dialector through the pure-Go modernc driver.
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gorm store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&model.AllocatorState{}, &model.TrailRecord{}); err != nil {
		return nil, fmt.Errorf("gorm store: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite with WAL tolerates a little parallelism from HTTP readers.
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load implements allocator.Repository.
func (s *Store) Load() (allocator.State, bool, error) {
	var row model.AllocatorState
	err := s.db.First(&row, allocatorRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return allocator.State{}, false, nil
	}
	if err != nil {
		return allocator.State{}, false, fmt.Errorf("gorm store: load allocator state: %w", err)
	}
	var state allocator.State
	if err := json.Unmarshal(row.Payload, &state); err != nil {
		return allocator.State{}, false, fmt.Errorf("gorm store: decode allocator state: %w", err)
	}
	return state, true, nil
}

// Save implements allocator.Repository with a single upserted row.
func (s *Store) Save(state allocator.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("gorm store: encode allocator state: %w", err)
	}
	row := model.AllocatorState{ID: allocatorRowID, Payload: payload}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("gorm store: save allocator state: %w", err)
	}
	return nil
}

// SaveTrail upserts one ticker's ratchet record.
func (s *Store) SaveTrail(rec trail.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("gorm store: encode trail %s: %w", rec.Ticker, err)
	}
	row := model.TrailRecord{Ticker: rec.Ticker, Payload: payload}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("gorm store: save trail %s: %w", rec.Ticker, err)
	}
	return nil
}

// DeleteTrail removes a record once its position closes.
func (s *Store) DeleteTrail(ticker string) error {
	return s.db.Delete(&model.TrailRecord{}, "ticker = ?", ticker).Error
}

// LoadTrails returns every persisted ratchet record.
func (s *Store) LoadTrails() ([]trail.Record, error) {
	var rows []model.TrailRecord
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm store: load trails: %w", err)
	}
	out := make([]trail.Record, 0, len(rows))
	for _, row := range rows {
		var rec trail.Record
		if err := json.Unmarshal(row.Payload, &rec); err != nil {
			return nil, fmt.Errorf("gorm store: decode trail %s: %w", row.Ticker, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
