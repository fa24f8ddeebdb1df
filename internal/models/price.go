package models

// Price is a single historical price point for a symbol.
// Rows are append-only; the (symbol, timestamp) pair identifies a point.
type Price struct {
	ID        uint    `gorm:"primaryKey"`
	Symbol    string  `gorm:"uniqueIndex:idx_symbol_ts;not null"`
	Timestamp int64   `gorm:"uniqueIndex:idx_symbol_ts;not null"`
	Value     float64 `gorm:"not null"`
}
