package port

import (
	"context"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

// WideColumnRepository holds the operational current-stock table.
type WideColumnRepository interface {
	// Open connects and ensures keyspace and table; calling it again is a no-op
	Open(ctx context.Context) error

	// Save appends a write to the pending batch, flushing at the batch size.
	// When that flush fails the write is dropped and its error returned.
	Save(ctx context.Context, storeID, sku string, quantity int) error

	// Flush executes the pending batch; a failed flush keeps the batch
	Flush(ctx context.Context) error

	// Put writes one row immediately, bypassing the batch
	Put(ctx context.Context, storeID, sku string, quantity int) error

	// Close flushes the remainder and releases the session
	Close(ctx context.Context) error
}

type StockReader interface {
	// Lookup returns the current level for a key, or nil if it does not exist
	Lookup(ctx context.Context, storeID, sku string) (*domain.StockLevel, error)
}

// RelationalRepository holds the stock_analytics mirror and the adjustment audit log.
type RelationalRepository interface {
	// Open connects and ensures both tables exist
	Open(ctx context.Context) error

	// Upsert replaces quantity and last_updated for a key, committing at the batch size
	Upsert(ctx context.Context, storeID, sku string, quantity int) error

	// Commit commits pending writes; no-op when nothing is pending
	Commit(ctx context.Context) error

	// LogAdjustment appends one audit row and commits immediately
	LogAdjustment(ctx context.Context, storeID, sku string, quantityDelta int) error

	// Close commits when cause is nil, rolls back otherwise, then releases the connection
	Close(ctx context.Context, cause error) error
}

// RepositoryFactory builds fresh, unopened repository instances. Every
// ingestion cycle gets its own pair.
type RepositoryFactory interface {
	NewWideColumnRepository() WideColumnRepository
	NewRelationalRepository() RelationalRepository
}
