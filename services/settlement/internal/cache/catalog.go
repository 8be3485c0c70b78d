package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
	"github.com/redis/go-redis/v9"
)

const defaultCatalogPrefix = "fmb:settlement:tokens:"

type CatalogStore interface {
	ListMarketTokens(ctx context.Context, marketID int64) ([]storage.MarketToken, error)
}

// CatalogCache fronts the per-market token catalogs with redis. Catalogs
// are read on every report row group and on checkout init, but change only
// at market setup, so a short TTL keeps them fresh enough.
type CatalogCache struct {
	client *redis.Client
	store  CatalogStore
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCatalogCache(client *redis.Client, store CatalogStore, ttl time.Duration, logger *slog.Logger) *CatalogCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogCache{
		client: client,
		store:  store,
		ttl:    ttl,
		prefix: defaultCatalogPrefix,
		logger: logger,
	}
}

// MarketTokens returns the market's token catalog, serving from redis when
// possible and falling back to the store. Redis failures degrade to the
// store rather than failing the caller.
func (c *CatalogCache) MarketTokens(ctx context.Context, marketID int64) ([]storage.MarketToken, error) {
	key := c.key(marketID)

	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Result()
		if err == nil {
			var tokens []storage.MarketToken
			if jsonErr := json.Unmarshal([]byte(raw), &tokens); jsonErr == nil {
				return tokens, nil
			}
			c.logger.Warn("corrupt catalog cache entry, refetching", "market_id", marketID)
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read failed", "market_id", marketID, "error", err)
		}
	}

	tokens, err := c.store.ListMarketTokens(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		if payload, err := json.Marshal(tokens); err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog cache write failed", "market_id", marketID, "error", err)
			}
		}
	}
	return tokens, nil
}

// Invalidate drops a market's cached catalog, e.g. after token setup changes.
func (c *CatalogCache) Invalidate(ctx context.Context, marketID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(marketID)).Err()
}

func (c *CatalogCache) key(marketID int64) string {
	return fmt.Sprintf("%s%d", c.prefix, marketID)
}
