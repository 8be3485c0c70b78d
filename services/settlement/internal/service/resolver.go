package service

import (
	"context"

	"log/slog"

	"github.com/joesimop/farmers-backend/services/settlement/internal/cache"
	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
)

type RuleSource interface {
	GetFeeRule(ctx context.Context, marketID int64, vendorType fees.VendorType) (*fees.Rule, error)
}

// FeeResolver answers "which fee rule applies to this vendor at this
// market". Lookups go through the schedule cache; a miss falls back to the
// store and backfills the cache. storage.ErrNoFeeRule propagates untouched
// so callers can decide whether a missing rule is fatal or advisory.
type FeeResolver struct {
	store  RuleSource
	cache  *cache.ScheduleCache
	logger *slog.Logger
}

func NewFeeResolver(store RuleSource, scheduleCache *cache.ScheduleCache, logger *slog.Logger) *FeeResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeeResolver{store: store, cache: scheduleCache, logger: logger}
}

func (r *FeeResolver) Resolve(ctx context.Context, marketID int64, vendorType fees.VendorType) (*fees.Rule, error) {
	if r.cache != nil {
		if rule, ok := r.cache.GetRule(marketID, vendorType); ok {
			return rule, nil
		}
	}

	rule, err := r.store.GetFeeRule(ctx, marketID, vendorType)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetRule(*rule)
	}
	return rule, nil
}
