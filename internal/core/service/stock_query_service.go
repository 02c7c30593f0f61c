package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/port"
)

var ErrStockNotFound = errors.New("stock not found")

// StockQueryService reads current stock through the cache.
type StockQueryService struct {
	reader port.StockReader
	cache  port.CacheRepository
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

func NewStockQueryService(reader port.StockReader, cache port.CacheRepository, ttl time.Duration, logger *zap.Logger) *StockQueryService {
	return &StockQueryService{reader: reader, cache: cache, ttl: ttl, logger: logger}
}

func (s *StockQueryService) GetStock(ctx context.Context, storeID, sku string) (*domain.StockLevel, error) {
	if level := s.cached(ctx, storeID, sku); level != nil {
		return level, nil
	}

	// singleflight collapses concurrent misses for a key into one lookup.
	value, err, _ := s.group.Do(storeID+":"+sku, func() (interface{}, error) {
		if level := s.cached(ctx, storeID, sku); level != nil {
			return level, nil
		}

		level, err := s.reader.Lookup(ctx, storeID, sku)
		if err != nil {
			return nil, fmt.Errorf("lookup stock: %w", err)
		}
		if level == nil {
			return nil, ErrStockNotFound
		}

		if err := s.cache.SetStock(ctx, *level, s.ttl); err != nil {
			s.logger.Warn("failed to cache stock",
				zap.String("store_id", storeID), zap.String("sku", sku), zap.Error(err))
		}
		return level, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*domain.StockLevel), nil
}

// cached treats a cache error as a miss.
func (s *StockQueryService) cached(ctx context.Context, storeID, sku string) *domain.StockLevel {
	level, err := s.cache.GetStock(ctx, storeID, sku)
	if err != nil {
		s.logger.Warn("stock cache read failed",
			zap.String("store_id", storeID), zap.String("sku", sku), zap.Error(err))
		return nil
	}
	return level
}
