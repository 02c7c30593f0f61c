package domain

import "time"

// StockAdjustment is one row of the append-only adjustment audit log.
type StockAdjustment struct {
	ID            int64
	StoreID       string
	SKU           string
	QuantityDelta int
	CreatedAt     time.Time
}

type AdjustmentRequest struct {
	StoreID   string
	SKU       string
	Quantity  int
	RequestID string // optional, deduplicates client retries
}

type AdjustmentResult struct {
	Success  bool   `json:"success"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}
