package database

import (
	"context"
	"fmt"

	"crypto-trade-bot-go/internal/models"
	"gorm.io/gorm"
)

// PriceStore persists historical price points for later backtesting.
type PriceStore struct {
	db *gorm.DB
}

// NewPriceStore creates a PriceStore on top of an open database handle.
func NewPriceStore(db *gorm.DB) *PriceStore {
	return &PriceStore{db: db}
}

// Store appends a single price point.
func (s *PriceStore) Store(ctx context.Context, symbol string, timestamp int64, value float64) error {
	price := models.Price{Symbol: symbol, Timestamp: timestamp, Value: value}
	if err := s.db.WithContext(ctx).Create(&price).Error; err != nil {
		return fmt.Errorf("failed to store price for %s: %w", symbol, err)
	}
	return nil
}

// StoreBatch appends multiple price points in a single insert.
func (s *PriceStore) StoreBatch(ctx context.Context, prices []models.Price) error {
	if len(prices) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&prices).Error; err != nil {
		return fmt.Errorf("failed to store %d prices: %w", len(prices), err)
	}
	return nil
}

// Latest returns the most recent price point for a symbol, or
// gorm.ErrRecordNotFound if the symbol has no history.
func (s *PriceStore) Latest(ctx context.Context, symbol string) (*models.Price, error) {
	var price models.Price
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		First(&price).Error
	if err != nil {
		return nil, err
	}
	return &price, nil
}

// Range returns price points for a symbol within [start, end], oldest first.
func (s *PriceStore) Range(ctx context.Context, symbol string, start, end int64) ([]models.Price, error) {
	var prices []models.Price
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ? AND timestamp <= ?", symbol, start, end).
		Order("timestamp ASC").
		Find(&prices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	return prices, nil
}
