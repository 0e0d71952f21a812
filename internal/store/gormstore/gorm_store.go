package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	storemodel "riptide/internal/store/model"
)

const baseStakeKey = "base_stake"

// TradeLeg is the persisted per-leg detail.
type TradeLeg struct {
	ContractID string  `json:"contract_id"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Outcome    string  `json:"outcome"`
	Profit     float64 `json:"profit"`
}

// TradeRecord is the store-facing view of one trade.
type TradeRecord struct {
	ContractID string
	Strategy   string
	Symbol     string
	Stake      float64
	Outcome    string
	Profit     float64
	Legs       []TradeLeg
	PlacedAt   time.Time
	SettledAt  time.Time
}

// GormStore persists session stake state and trade records in SQLite.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&storemodel.SessionStateModel{}, &storemodel.TradeRecordModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadBaseStake implements stake.Store.
func (s *GormStore) LoadBaseStake(ctx context.Context) (float64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, nil
	}
	var row storemodel.SessionStateModel
	err := s.db.WithContext(ctx).First(&row, "key = ?", baseStakeKey).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return row.FloatValue, true, nil
}

// SaveBaseStake implements stake.Store.
func (s *GormStore) SaveBaseStake(ctx context.Context, base float64) error {
	if s == nil || s.db == nil {
		return nil
	}
	row := storemodel.SessionStateModel{
		Key:           baseStakeKey,
		FloatValue:    base,
		UpdatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"float_value", "updated_at"}),
	}).Create(&row).Error
}

// RecordTrade upserts a trade record keyed by contract id, so the settlement
// update lands on the row the placement created.
func (s *GormStore) RecordTrade(ctx context.Context, rec TradeRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	legs, err := json.Marshal(rec.Legs)
	if err != nil {
		return fmt.Errorf("marshal trade legs: %w", err)
	}
	row := storemodel.TradeRecordModel{
		ContractID:   rec.ContractID,
		Strategy:     rec.Strategy,
		Symbol:       rec.Symbol,
		Stake:        rec.Stake,
		Outcome:      rec.Outcome,
		Profit:       rec.Profit,
		Legs:         legs,
		PlacedAtUnix: rec.PlacedAt.Unix(),
	}
	if !rec.SettledAt.IsZero() {
		row.SettledAtUnix = rec.SettledAt.Unix()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"outcome", "profit", "legs", "settled_at"}),
	}).Create(&row).Error
}

// RecentTrades returns up to limit trades, newest first.
func (s *GormStore) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []storemodel.TradeRecordModel
	if err := s.db.WithContext(ctx).Order("placed_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(rows))
	for _, row := range rows {
		rec := TradeRecord{
			ContractID: row.ContractID,
			Strategy:   row.Strategy,
			Symbol:     row.Symbol,
			Stake:      row.Stake,
			Outcome:    row.Outcome,
			Profit:     row.Profit,
			PlacedAt:   time.Unix(row.PlacedAtUnix, 0),
		}
		if row.SettledAtUnix > 0 {
			rec.SettledAt = time.Unix(row.SettledAtUnix, 0)
		}
		if len(row.Legs) > 0 {
			if err := json.Unmarshal(row.Legs, &rec.Legs); err != nil {
				return nil, fmt.Errorf("unmarshal trade legs: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
