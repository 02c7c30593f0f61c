package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// GeneratedAtLayout is the wire layout of InventoryRecord.GeneratedAt.
const GeneratedAtLayout = "2006-01-02 15:04:05"

// InventoryRecord is one line of an inventory snapshot. (StoreID, SKU) is the
// natural key of the current-state tables.
type InventoryRecord struct {
	StoreID     string
	SKU         string
	Category    string
	Product     string
	Quantity    int
	GeneratedAt time.Time
}

// recordWire fixes the field order of the encoded record.
type recordWire struct {
	StoreID     string `json:"store_id"`
	SKU         string `json:"sku"`
	Category    string `json:"category"`
	Product     string `json:"product"`
	Quantity    int    `json:"quantity"`
	GeneratedAt string `json:"generated_at"`
}

func (r InventoryRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordWire{
		StoreID:     r.StoreID,
		SKU:         r.SKU,
		Category:    r.Category,
		Product:     r.Product,
		Quantity:    r.Quantity,
		GeneratedAt: r.GeneratedAt.Format(GeneratedAtLayout),
	})
}

// UnmarshalJSON accepts generated_at either in GeneratedAtLayout or RFC 3339.
func (r *InventoryRecord) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var generatedAt time.Time
	if w.GeneratedAt != "" {
		t, err := time.Parse(GeneratedAtLayout, w.GeneratedAt)
		if err != nil {
			t, err = time.Parse(time.RFC3339, w.GeneratedAt)
			if err != nil {
				return fmt.Errorf("parse generated_at %q: %w", w.GeneratedAt, err)
			}
		}
		generatedAt = t
	}

	*r = InventoryRecord{
		StoreID:     w.StoreID,
		SKU:         w.SKU,
		Category:    w.Category,
		Product:     w.Product,
		Quantity:    w.Quantity,
		GeneratedAt: generatedAt,
	}
	return nil
}

// Snapshot is an ordered batch of records handed to one ingestion cycle.
type Snapshot struct {
	ID      string
	Records []InventoryRecord
}

// StockLevel is the current state of one (store, sku) key.
type StockLevel struct {
	StoreID     string    `json:"store_id"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	LastUpdated time.Time `json:"last_updated"`
}
