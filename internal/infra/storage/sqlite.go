// Package storage keeps the instrument master in a local SQLite file.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"feed_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the instrument master for one exchange. Symbol lookups are
// served from an in-memory cache filled by Load and Upsert, so sinks
// never touch the database on the hot path.
type Storage struct {
	db       *gorm.DB
	exchange domain.Exchange

	mu      sync.RWMutex
	symbols map[int64]string
}

// NewStorage opens (creating if needed) the database at path.
func NewStorage(path string, ex domain.Exchange) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go SQLite
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newWithDB(db, ex)
}

func newWithDB(db *gorm.DB, ex domain.Exchange) (*Storage, error) {
	if err := db.AutoMigrate(&domain.Instrument{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db, exchange: ex, symbols: make(map[int64]string)}, nil
}

// Upsert creates or updates instruments and refreshes the cache.
func (s *Storage) Upsert(insts ...domain.Instrument) error {
	if len(insts) == 0 {
		return nil
	}
	for i := range insts {
		insts[i].Exchange = string(s.exchange)
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "exchange"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol", "name", "updated_at"}),
	}).Create(&insts).Error
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, in := range insts {
		s.symbols[in.Token] = in.Symbol
	}
	s.mu.Unlock()
	return nil
}

// Get retrieves one instrument by token. Not found is not an error.
func (s *Storage) Get(token int64) (*domain.Instrument, error) {
	var inst domain.Instrument
	err := s.db.First(&inst, "token = ? AND exchange = ?", token, string(s.exchange)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// All lists every instrument of this exchange ordered by token.
func (s *Storage) All() ([]domain.Instrument, error) {
	var insts []domain.Instrument
	err := s.db.Where("exchange = ?", string(s.exchange)).Order("token").Find(&insts).Error
	return insts, err
}

// Delete removes an instrument.
func (s *Storage) Delete(token int64) error {
	err := s.db.Where("token = ? AND exchange = ?", token, string(s.exchange)).Delete(&domain.Instrument{}).Error
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.symbols, token)
	s.mu.Unlock()
	return nil
}

// Load fills the symbol cache from the database.
func (s *Storage) Load() (int, error) {
	insts, err := s.All()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	for _, in := range insts {
		s.symbols[in.Token] = in.Symbol
	}
	s.mu.Unlock()
	return len(insts), nil
}

// Symbol implements domain.InstrumentLookup.
func (s *Storage) Symbol(token int64) (string, bool) {
	s.mu.RLock()
	sym, ok := s.symbols[token]
	s.mu.RUnlock()
	return sym, ok
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
