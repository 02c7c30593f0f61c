package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/port"
)

var (
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInvalidAdjustment = errors.New("invalid adjustment")
)

type StockWriter interface {
	Put(ctx context.Context, storeID, sku string, quantity int) error
}

// AuditRepositoryFactory hands out an unopened relational repository for
// each audit row, so a broken connection never outlives one request.
type AuditRepositoryFactory interface {
	NewRelationalRepository() port.RelationalRepository
}

// StockAdjustmentService sets a key's quantity with one immediate write and
// appends an audit row for it. Success reports the operational write only;
// a failed audit row is logged and counted but never returned.
type StockAdjustmentService struct {
	stock          StockWriter
	audits         AuditRepositoryFactory
	cache          port.CacheRepository
	defaultStoreID string
	logger         *zap.Logger

	auditFailures metric.Int64Counter
}

func NewStockAdjustmentService(stock StockWriter, audits AuditRepositoryFactory, cache port.CacheRepository, defaultStoreID string, logger *zap.Logger) *StockAdjustmentService {
	auditFailures, err := otel.Meter(instrumentationName).Int64Counter("adjustment.audit.failed",
		metric.WithDescription("Adjustments whose audit row could not be written"))
	if err != nil {
		logger.Warn("failed to create audit failure counter", zap.Error(err))
	}

	return &StockAdjustmentService{
		stock:          stock,
		audits:         audits,
		cache:          cache,
		defaultStoreID: defaultStoreID,
		logger:         logger,
		auditFailures:  auditFailures,
	}
}

func (s *StockAdjustmentService) Adjust(ctx context.Context, req domain.AdjustmentRequest) (domain.AdjustmentResult, error) {
	if req.SKU == "" {
		return domain.AdjustmentResult{}, fmt.Errorf("%w: sku is required", ErrInvalidAdjustment)
	}

	storeID := req.StoreID
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	if req.RequestID != "" {
		ok, err := s.cache.SetIdempotency(ctx, req.RequestID)
		if err != nil {
			return domain.AdjustmentResult{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.AdjustmentResult{}, ErrDuplicateRequest
		}
	}

	logger := s.logger.With(
		zap.String("store_id", storeID),
		zap.String("sku", req.SKU),
		zap.Int("quantity", req.Quantity),
	)
	result := domain.AdjustmentResult{SKU: req.SKU, Quantity: req.Quantity}

	if err := s.stock.Put(ctx, storeID, req.SKU, req.Quantity); err != nil {
		logger.Error("stock adjustment write failed", zap.Error(err))
		// Nothing was written, so a retry with the same request ID must pass.
		if req.RequestID != "" {
			if err := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), req.RequestID); err != nil {
				logger.Warn("failed to release idempotency key",
					zap.String("request_id", req.RequestID), zap.Error(err))
			}
		}
	} else {
		result.Success = true
		if err := s.cache.InvalidateStock(ctx, storeID, req.SKU); err != nil {
			logger.Warn("failed to invalidate cached stock", zap.Error(err))
		}
	}

	// The audit row is written whatever happened above, even if the caller
	// has gone away.
	if err := s.logAdjustment(context.WithoutCancel(ctx), storeID, req.SKU, req.Quantity); err != nil {
		logger.Error("adjustment audit write failed", zap.Error(err))
		if s.auditFailures != nil {
			s.auditFailures.Add(ctx, 1)
		}
	}

	return result, nil
}

func (s *StockAdjustmentService) logAdjustment(ctx context.Context, storeID, sku string, quantityDelta int) (err error) {
	repo := s.audits.NewRelationalRepository()
	if err := repo.Open(ctx); err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(ctx, err); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close audit store: %w", closeErr))
		}
	}()

	return repo.LogAdjustment(ctx, storeID, sku, quantityDelta)
}
