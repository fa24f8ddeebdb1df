package models

import "gorm.io/gorm"

// Trade represents a completed trade record in the database.
type Trade struct {
	gorm.Model
	Symbol        string  `json:"symbol" gorm:"index"`
	Side          string  `json:"side"` // "buy" or "sell"
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	QuoteQuantity float64 `json:"quote_quantity"`
	OrderID       string  `json:"order_id"`
	Timestamp     int64   `json:"timestamp"`
	IsSimulation  bool    `json:"is_simulation"`
}
