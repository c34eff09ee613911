package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tw-tick-api/src/format"
	"tw-tick-api/src/helpers"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/utils"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ticks:"

// Compile-time check
var _ interfaces.ITickSource = (*CachedSource)(nil)

// CachedSource is a read-through Redis cache in front of a tick source.
// Only finished trading days are cached; today and later always reach the source.
type CachedSource struct {
	inner  interfaces.ITickSource
	client *redis.Client
	ttl    time.Duration
	Logger *logger.Logger
	now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewCachedSource(inner interfaces.ITickSource, client *redis.Client, ttl time.Duration, log *logger.Logger) *CachedSource {
	return &CachedSource{
		inner:  inner,
		client: client,
		ttl:    ttl,
		Logger: log,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

// NewRedisClient builds the client from config.
func NewRedisClient(cfg *models.MCacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// -----------------------------------------------------------------------------

func (c *CachedSource) Name() string {
	return c.inner.Name()
}

// -----------------------------------------------------------------------------

func Key(stockID string, date time.Time) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, stockID, date.Format(format.CompactDateLayout))
}

// -----------------------------------------------------------------------------

func (c *CachedSource) cacheable(date time.Time) bool {
	return format.DateKey(date) < format.DateKey(utils.TodayInTaipei(c.now()))
}

// -----------------------------------------------------------------------------

func (c *CachedSource) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	if !c.cacheable(date) {
		return c.inner.FetchTicks(ctx, stockID, date)
	}

	key := Key(stockID, date)
	if records, ok := c.lookup(ctx, key); ok {
		return records, nil
	}

	records, err := c.inner.FetchTicks(ctx, stockID, date)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		c.store(ctx, key, records)
	}
	return records, nil
}

// -----------------------------------------------------------------------------

// lookup treats every Redis failure as a miss.
func (c *CachedSource) lookup(ctx context.Context, key string) ([]*models.MTickRecord, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.Logger.Warning("Cache read %s failed, bypassing: %v", key, err)
		return nil, false
	}

	var records []*models.MTickRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		c.Logger.Warning("Cache entry %s is corrupt, dropping: %v", key, err)
		c.client.Del(ctx, key)
		return nil, false
	}
	c.Logger.Debug("Cache hit %s (%d records)", key, len(records))
	return records, true
}

// -----------------------------------------------------------------------------

func (c *CachedSource) store(ctx context.Context, key string, records []*models.MTickRecord) {
	payload, err := json.Marshal(records)
	if err != nil {
		c.Logger.Warning("Cache encode %s failed: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.Logger.Warning("Cache write %s failed, bypassing: %v", key, err)
	}
}

// -----------------------------------------------------------------------------

func (c *CachedSource) ListStocks(ctx context.Context, date time.Time) ([]string, error) {
	lister, ok := c.inner.(interfaces.IStockLister)
	if !ok {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("source %s cannot list stocks", c.inner.Name()), nil)
	}
	return lister.ListStocks(ctx, date)
}

// -----------------------------------------------------------------------------

// Ping checks the wrapped source; Redis being down only degrades the cache.
func (c *CachedSource) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.Logger.Warning("Redis ping failed: %v", err)
	}
	if pinger, ok := c.inner.(interfaces.IPinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *CachedSource) Close() error {
	return c.client.Close()
}
