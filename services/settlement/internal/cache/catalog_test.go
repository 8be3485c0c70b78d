package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type fakeCatalogStore struct {
	tokens map[int64][]storage.MarketToken
	calls  int
}

func (f *fakeCatalogStore) ListMarketTokens(ctx context.Context, marketID int64) ([]storage.MarketToken, error) {
	f.calls++
	return f.tokens[marketID], nil
}

func testCatalog() map[int64][]storage.MarketToken {
	return map[int64][]storage.MarketToken{
		1: {
			{ID: 10, MarketID: 1, Type: storage.TokenEBT, PerDollarValue: decimal.NewFromInt(1)},
			{ID: 11, MarketID: 1, Type: storage.TokenMarketMatch, PerDollarValue: decimal.RequireFromString("0.5")},
		},
	}
}

func TestCatalogCacheMissThenHit(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := &fakeCatalogStore{tokens: testCatalog()}
	c := NewCatalogCache(client, store, time.Minute, nil)
	ctx := context.Background()

	tokens, err := c.MarketTokens(ctx, 1)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.calls)
	}

	tokens, err = c.MarketTokens(ctx, 1)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens from cache, got %d", len(tokens))
	}
	if store.calls != 1 {
		t.Fatalf("expected cached read to skip the store, got %d calls", store.calls)
	}
	if tokens[1].Type != storage.TokenMarketMatch {
		t.Fatalf("expected MARKET_MATCH, got %s", tokens[1].Type)
	}
	if !tokens[1].PerDollarValue.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected per-dollar value 0.5, got %s", tokens[1].PerDollarValue)
	}
}

func TestCatalogCacheTTLExpiry(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := &fakeCatalogStore{tokens: testCatalog()}
	c := NewCatalogCache(client, store, time.Second, nil)
	ctx := context.Background()

	if _, err := c.MarketTokens(ctx, 1); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	s.FastForward(2 * time.Second)

	if _, err := c.MarketTokens(ctx, 1); err != nil {
		t.Fatalf("fetch after expiry: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected expiry to refetch from store, got %d calls", store.calls)
	}
}

func TestCatalogCacheInvalidate(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := &fakeCatalogStore{tokens: testCatalog()}
	c := NewCatalogCache(client, store, time.Minute, nil)
	ctx := context.Background()

	if _, err := c.MarketTokens(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := c.Invalidate(ctx, 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := c.MarketTokens(ctx, 1); err != nil {
		t.Fatalf("fetch after invalidate: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected invalidate to force a store read, got %d calls", store.calls)
	}
}

func TestCatalogCacheNoRedisFallsBackToStore(t *testing.T) {
	store := &fakeCatalogStore{tokens: testCatalog()}
	c := NewCatalogCache(nil, store, time.Minute, nil)

	tokens, err := c.MarketTokens(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch without redis: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
}
