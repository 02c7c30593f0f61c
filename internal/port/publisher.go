package port

import (
	"context"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

type RecordPublisher interface {
	// Publish hands a record to the broker without waiting for acknowledgment
	Publish(ctx context.Context, record domain.InventoryRecord)

	// Flush blocks until every outstanding send was acknowledged or failed
	Flush(ctx context.Context) domain.PublishReport
}

type PublisherFactory interface {
	NewPublisher() RecordPublisher
}
