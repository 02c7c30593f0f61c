package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryRecord_MarshalFieldOrder(t *testing.T) {
	r := InventoryRecord{
		StoreID:     "Store-001",
		SKU:         "FRU-APP-123",
		Category:    "Fruits & Vegetables",
		Product:     "Apples",
		Quantity:    10,
		GeneratedAt: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"store_id":"Store-001","sku":"FRU-APP-123","category":"Fruits & Vegetables","product":"Apples","quantity":10,"generated_at":"2025-03-04 05:06:07"}`,
		string(data))
}

func TestInventoryRecord_UnmarshalLayouts(t *testing.T) {
	want := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	var a, b InventoryRecord
	require.NoError(t, json.Unmarshal([]byte(`{"sku":"A","generated_at":"2025-03-04 05:06:07"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"sku":"A","generated_at":"2025-03-04T05:06:07Z"}`), &b))

	assert.True(t, want.Equal(a.GeneratedAt))
	assert.True(t, want.Equal(b.GeneratedAt))

	var bad InventoryRecord
	assert.Error(t, json.Unmarshal([]byte(`{"generated_at":"yesterday"}`), &bad))
}

func TestCycleReport_Counts(t *testing.T) {
	report := NewCycleReport("c1", 3)
	report.Add(RecordResult{Index: 0})
	report.Add(RecordResult{Index: 1, FailedSink: SinkWideColumn, Err: assert.AnError})
	report.Add(RecordResult{Index: 2, FailedSink: SinkRelational, Err: assert.AnError})

	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 2, report.Failed())
	assert.Equal(t, 1, report.FailedAt(SinkWideColumn))
	assert.Equal(t, 1, report.FailedAt(SinkRelational))
}
