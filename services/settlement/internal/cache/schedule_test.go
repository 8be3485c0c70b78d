package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/shopspring/decimal"
)

type fakeRuleStore struct {
	rules []fees.Rule
	err   error
	calls int
}

func (f *fakeRuleStore) ListAllFeeRules(ctx context.Context) ([]fees.Rule, error) {
	f.calls++
	return f.rules, f.err
}

func TestScheduleCacheLoadAndGet(t *testing.T) {
	store := &fakeRuleStore{rules: []fees.Rule{
		{MarketID: 1, VendorType: fees.VendorProducer, Type: fees.PercentGross, Rate: decimal.NewFromInt(1)},
		{MarketID: 1, VendorType: fees.VendorAncillary, Type: fees.FlatFee, Rate: decimal.NewFromInt(20)},
		{MarketID: 2, VendorType: fees.VendorProducer, Type: fees.GovFee, Rate: decimal.NewFromInt(3)},
	}}

	c := NewScheduleCache()
	if err := c.Load(context.Background(), store); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Size() != 3 {
		t.Fatalf("expected 3 rules, got %d", c.Size())
	}

	rule, ok := c.GetRule(1, fees.VendorAncillary)
	if !ok {
		t.Fatal("expected rule for market 1 ancillary")
	}
	if rule.Type != fees.FlatFee {
		t.Fatalf("expected FLAT_FEE, got %s", rule.Type)
	}

	if _, ok := c.GetRule(2, fees.VendorNonProducer); ok {
		t.Fatal("expected miss for unconfigured pair")
	}
}

func TestScheduleCacheLoadError(t *testing.T) {
	store := &fakeRuleStore{err: errors.New("db down")}
	c := NewScheduleCache()
	if err := c.Load(context.Background(), store); err == nil {
		t.Fatal("expected load error")
	}
}

func TestScheduleCacheRefreshReplaces(t *testing.T) {
	store := &fakeRuleStore{rules: []fees.Rule{
		{MarketID: 1, VendorType: fees.VendorProducer, Type: fees.FlatFee, Rate: decimal.NewFromInt(10)},
	}}
	c := NewScheduleCache()
	if err := c.Load(context.Background(), store); err != nil {
		t.Fatalf("load: %v", err)
	}

	store.rules = []fees.Rule{
		{MarketID: 1, VendorType: fees.VendorProducer, Type: fees.FlatFee, Rate: decimal.NewFromInt(15)},
	}
	if err := c.Refresh(context.Background(), store); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	rule, ok := c.GetRule(1, fees.VendorProducer)
	if !ok {
		t.Fatal("expected rule after refresh")
	}
	if !rule.Rate.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected refreshed rate 15, got %s", rule.Rate)
	}
	if store.calls != 2 {
		t.Fatalf("expected 2 store calls, got %d", store.calls)
	}
}

func TestScheduleCacheSetRule(t *testing.T) {
	c := NewScheduleCache()
	c.SetRule(fees.Rule{MarketID: 7, VendorType: fees.VendorProducer, Type: fees.GovFee, Rate: decimal.NewFromInt(2)})

	rule, ok := c.GetRule(7, fees.VendorProducer)
	if !ok || rule.Type != fees.GovFee {
		t.Fatalf("expected inserted rule, got %v %v", rule, ok)
	}
}
