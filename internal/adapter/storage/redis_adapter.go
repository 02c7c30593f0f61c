package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

const (
	stockKeyPrefix       = "stock:"
	idempotencyKeyPrefix = "adjustment:"
)

// setStockIfNewerScript refuses to overwrite a cached level that was updated
// later than the incoming one. Timestamps are unix milliseconds.
var setStockIfNewerScript = redis.NewScript(`
local key = KEYS[1]
local quantity = ARGV[1]
local updated = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = redis.call('HGET', key, 'last_updated')
if current and tonumber(current) > updated then
	return 0
end

redis.call('HSET', key, 'quantity', quantity, 'last_updated', updated)
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end
return 1
`)

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, idempotencyTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, idempotencyTTL: idempotencyTTL}
}

func stockKey(storeID, sku string) string {
	return stockKeyPrefix + storeID + ":" + sku
}

func (r *RedisAdapter) GetStock(ctx context.Context, storeID, sku string) (*domain.StockLevel, error) {
	fields, err := r.client.HGetAll(ctx, stockKey(storeID, sku)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	quantity, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return nil, err
	}
	updated, err := strconv.ParseInt(fields["last_updated"], 10, 64)
	if err != nil {
		return nil, err
	}

	return &domain.StockLevel{
		StoreID:     storeID,
		SKU:         sku,
		Quantity:    quantity,
		LastUpdated: time.UnixMilli(updated).UTC(),
	}, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, level domain.StockLevel, ttl time.Duration) error {
	key := stockKey(level.StoreID, level.SKU)
	return setStockIfNewerScript.Run(ctx, r.client, []string{key},
		level.Quantity, level.LastUpdated.UnixMilli(), ttl.Milliseconds()).Err()
}

func (r *RedisAdapter) InvalidateStock(ctx context.Context, storeID, sku string) error {
	return r.client.Del(ctx, stockKey(storeID, sku)).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
