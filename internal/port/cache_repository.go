package port

import (
	"context"
	"time"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

type CacheRepository interface {
	// GetStock returns the cached level for a key, or nil on a miss
	GetStock(ctx context.Context, storeID, sku string) (*domain.StockLevel, error)

	// SetStock caches a level unless a newer one is already cached
	SetStock(ctx context.Context, level domain.StockLevel, ttl time.Duration) error

	// InvalidateStock drops the cached level for a key
	InvalidateStock(ctx context.Context, storeID, sku string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a key so the request may be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
