package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/port"
)

const instrumentationName = "github.com/rl1809/stock-ingest/internal/core/service"

var ErrRepositoryUnavailable = errors.New("repository unavailable")

// PersistenceCoordinator writes one cycle of records into both stores. Each
// record goes to the wide-column store first; the relational write only
// happens when that succeeded. Record failures are collected, not raised.
type PersistenceCoordinator struct {
	factory port.RepositoryFactory
	delay   time.Duration
	logger  *zap.Logger

	tracer    trace.Tracer
	persisted metric.Int64Counter
	failed    metric.Int64Counter
}

func NewPersistenceCoordinator(factory port.RepositoryFactory, delay time.Duration, logger *zap.Logger) *PersistenceCoordinator {
	meter := otel.Meter(instrumentationName)

	persisted, err := meter.Int64Counter("ingest.records.persisted",
		metric.WithDescription("Records written to both stores"))
	if err != nil {
		logger.Warn("failed to create persisted counter", zap.Error(err))
	}
	failed, err := meter.Int64Counter("ingest.records.failed",
		metric.WithDescription("Records that failed against a store"))
	if err != nil {
		logger.Warn("failed to create failed counter", zap.Error(err))
	}

	return &PersistenceCoordinator{
		factory:   factory,
		delay:     delay,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		persisted: persisted,
		failed:    failed,
	}
}

// WithRepositories opens a fresh pair of repositories, runs fn and releases
// both on every exit path. The relational side rolls back when fn fails, ctx
// ends or fn panics; otherwise it commits. Release errors are joined into the
// returned error.
func (c *PersistenceCoordinator) WithRepositories(ctx context.Context, fn func(port.WideColumnRepository, port.RelationalRepository) error) (err error) {
	wide := c.factory.NewWideColumnRepository()
	if err := wide.Open(ctx); err != nil {
		return fmt.Errorf("%w: open wide-column store: %w", ErrRepositoryUnavailable, err)
	}

	rel := c.factory.NewRelationalRepository()
	if err := rel.Open(ctx); err != nil {
		openErr := fmt.Errorf("%w: open relational store: %w", ErrRepositoryUnavailable, err)
		return multierr.Append(openErr, wide.Close(context.WithoutCancel(ctx)))
	}

	defer func() {
		if r := recover(); r != nil {
			c.release(ctx, wide, rel, fmt.Errorf("panic: %v", r))
			panic(r)
		}

		cause := err
		if cause == nil {
			cause = ctx.Err()
		}
		err = multierr.Append(err, c.release(ctx, wide, rel, cause))
	}()

	return fn(wide, rel)
}

func (c *PersistenceCoordinator) release(ctx context.Context, wide port.WideColumnRepository, rel port.RelationalRepository, cause error) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	if closeErr := wide.Close(ctx); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("close wide-column store: %w", closeErr))
	}
	if closeErr := rel.Close(ctx, cause); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("close relational store: %w", closeErr))
	}
	return err
}

// Persist runs one ingestion cycle. A nil report means neither store could be
// opened; otherwise the report holds one result per record processed, and the
// error carries flush or close failures and cancellation.
func (c *PersistenceCoordinator) Persist(ctx context.Context, records []domain.InventoryRecord) (*domain.CycleReport, error) {
	cycleID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "persist_cycle", trace.WithAttributes(
		attribute.String("cycle.id", cycleID),
		attribute.Int("cycle.records", len(records)),
	))
	defer span.End()

	logger := c.logger.With(zap.String("cycle_id", cycleID))
	report := domain.NewCycleReport(cycleID, len(records))

	err := c.WithRepositories(ctx, func(wide port.WideColumnRepository, rel port.RelationalRepository) error {
		for i, record := range records {
			if i > 0 && c.delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.delay):
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			report.Add(c.persistRecord(ctx, logger, wide, rel, i, record))
		}
		return nil
	})
	report.FinishedAt = time.Now()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if errors.Is(err, ErrRepositoryUnavailable) {
		logger.Error("persistence cycle aborted", zap.Error(err))
		return nil, err
	}

	c.record(ctx, report)
	span.SetAttributes(
		attribute.Int("cycle.succeeded", report.Succeeded()),
		attribute.Int("cycle.failed", report.Failed()),
	)

	logger.Info("persistence cycle finished",
		zap.Int("records", len(records)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed_wide_column", report.FailedAt(domain.SinkWideColumn)),
		zap.Int("failed_relational", report.FailedAt(domain.SinkRelational)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
		zap.Error(err),
	)
	return report, err
}

func (c *PersistenceCoordinator) persistRecord(ctx context.Context, logger *zap.Logger, wide port.WideColumnRepository, rel port.RelationalRepository, index int, record domain.InventoryRecord) domain.RecordResult {
	result := domain.RecordResult{Index: index, Record: record}

	if err := wide.Save(ctx, record.StoreID, record.SKU, record.Quantity); err != nil {
		logger.Error("wide-column write failed, skipping relational write",
			zap.Int("index", index),
			zap.String("store_id", record.StoreID),
			zap.String("sku", record.SKU),
			zap.Error(err),
		)
		result.FailedSink = domain.SinkWideColumn
		result.Err = err
		return result
	}

	if err := rel.Upsert(ctx, record.StoreID, record.SKU, record.Quantity); err != nil {
		logger.Error("relational write failed",
			zap.Int("index", index),
			zap.String("store_id", record.StoreID),
			zap.String("sku", record.SKU),
			zap.Error(err),
		)
		result.FailedSink = domain.SinkRelational
		result.Err = err
	}
	return result
}

func (c *PersistenceCoordinator) record(ctx context.Context, report *domain.CycleReport) {
	if c.persisted != nil {
		c.persisted.Add(ctx, int64(report.Succeeded()))
	}
	if c.failed == nil {
		return
	}
	for _, sink := range []domain.Sink{domain.SinkWideColumn, domain.SinkRelational} {
		if n := report.FailedAt(sink); n > 0 {
			c.failed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("sink", string(sink))))
		}
	}
}
