package service

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotGenerator_Generate(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 500, time.UTC)
	snapshot := NewSnapshotGenerator(42, nil).Generate(50, at)

	require.Len(t, snapshot.Records, 50)
	skuPattern := regexp.MustCompile(`^[A-Z&]{3}-[A-Z ]{3}-[1-9][0-9]{2}$`)

	for _, r := range snapshot.Records {
		assert.Contains(t, DefaultStores, r.StoreID)
		assert.Regexp(t, skuPattern, r.SKU)
		assert.GreaterOrEqual(t, r.Quantity, 10)
		assert.LessOrEqual(t, r.Quantity, 200)
		assert.Equal(t, at.Truncate(time.Second), r.GeneratedAt)
	}
}

func TestSnapshotGenerator_Deterministic(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	first := NewSnapshotGenerator(7, []string{"Store-009"}).Generate(10, at)
	second := NewSnapshotGenerator(7, []string{"Store-009"}).Generate(10, at)

	assert.Equal(t, first, second)
	assert.Equal(t, "Store-009", first.Records[0].StoreID)
}
