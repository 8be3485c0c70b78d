package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
)

type RuleStore interface {
	ListAllFeeRules(ctx context.Context) ([]fees.Rule, error)
}

// ScheduleCache keeps every market's fee rules in memory, keyed by
// (market, vendor type). Fee schedules change rarely; refreshes run on a
// timer and lookups never touch the database.
type ScheduleCache struct {
	mu          sync.RWMutex
	rules       map[string]fees.Rule
	lastRefresh time.Time
}

func NewScheduleCache() *ScheduleCache {
	return &ScheduleCache{
		rules: make(map[string]fees.Rule),
	}
}

func (c *ScheduleCache) Load(ctx context.Context, store RuleStore) error {
	rules, err := store.ListAllFeeRules(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make(map[string]fees.Rule, len(rules))
	for _, rule := range rules {
		c.rules[scheduleKey(rule.MarketID, rule.VendorType)] = rule
	}
	c.lastRefresh = time.Now().UTC()
	return nil
}

func (c *ScheduleCache) Refresh(ctx context.Context, store RuleStore) error {
	return c.Load(ctx, store)
}

func (c *ScheduleCache) GetRule(marketID int64, vendorType fees.VendorType) (*fees.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rule, ok := c.rules[scheduleKey(marketID, vendorType)]
	if !ok {
		return nil, false
	}
	copy := rule
	return &copy, true
}

func (c *ScheduleCache) SetRule(rule fees.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rules == nil {
		c.rules = make(map[string]fees.Rule)
	}
	c.rules[scheduleKey(rule.MarketID, rule.VendorType)] = rule
}

func (c *ScheduleCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

func (c *ScheduleCache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

func (c *ScheduleCache) StartAutoRefresh(ctx context.Context, store RuleStore, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		logger.Warn("fee schedule refresh disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := c.Refresh(refreshCtx, store)
				cancel()
				if err != nil {
					logger.Error("fee schedule refresh failed", "error", err)
					continue
				}
				logger.Info("fee schedule cache refreshed", "rules", c.Size())
			}
		}
	}()
}

func scheduleKey(marketID int64, vendorType fees.VendorType) string {
	return fmt.Sprintf("%d|%s", marketID, vendorType)
}
