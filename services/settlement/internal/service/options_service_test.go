package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
)

type fakeOptionsStore struct {
	markets map[int64][]storage.Market
	vendors map[int64][]storage.MarketVendor
	rules   map[int64][]fees.Rule
}

func (f *fakeOptionsStore) ListManagerMarkets(_ context.Context, managerID int64) ([]storage.Market, error) {
	return f.markets[managerID], nil
}

func (f *fakeOptionsStore) ListMarketVendors(_ context.Context, marketID int64) ([]storage.MarketVendor, error) {
	return f.vendors[marketID], nil
}

func (f *fakeOptionsStore) ListMarketFees(_ context.Context, marketID int64) ([]fees.Rule, error) {
	return f.rules[marketID], nil
}

func TestReportingMarketsPrependsAllMarkets(t *testing.T) {
	store := &fakeOptionsStore{markets: map[int64][]storage.Market{
		5: {
			{ID: 1, ManagerID: 5, Name: "Downtown Saturday"},
			{ID: 2, ManagerID: 5, Name: "Riverside Wednesday"},
		},
	}}
	svc := NewOptionsService(store, &fakeCatalogSource{}, nil)

	markets, err := svc.ReportingMarkets(context.Background(), 5)
	if err != nil {
		t.Fatalf("ReportingMarkets: %v", err)
	}
	if len(markets) != 3 {
		t.Fatalf("got %d markets, want 3", len(markets))
	}
	if markets[0].ID != AllMarketsID || markets[0].Name != "All Markets" {
		t.Fatalf("first entry = %+v, want the synthetic all-markets entry", markets[0])
	}
	if markets[1].ID != 1 || markets[2].ID != 2 {
		t.Fatalf("real markets out of order: %+v", markets[1:])
	}
}

func TestMarketDetailsRejectsFutureDate(t *testing.T) {
	svc := NewOptionsService(&fakeOptionsStore{}, &fakeCatalogSource{}, nil)

	future := time.Now().UTC().AddDate(0, 0, 2)
	_, err := svc.MarketDetails(context.Background(), 1, future)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestMarketDetailsAssemblesAllThree(t *testing.T) {
	store := &fakeOptionsStore{
		vendors: map[int64][]storage.MarketVendor{
			1: {{ID: 7, MarketID: 1, VendorID: 21, BusinessName: "Hilltop Farm", VendorType: fees.VendorProducer}},
		},
		rules: map[int64][]fees.Rule{
			1: {{MarketID: 1, VendorType: fees.VendorProducer, Type: fees.FlatFee, Rate: dec(t, "15")}},
		},
	}
	catalogs := &fakeCatalogSource{catalogs: map[int64][]storage.MarketToken{
		1: marketOneCatalog(t),
	}}
	svc := NewOptionsService(store, catalogs, nil)

	details, err := svc.MarketDetails(context.Background(), 1, marketDate(t, "2024-06-01"))
	if err != nil {
		t.Fatalf("MarketDetails: %v", err)
	}
	if len(details.Vendors) != 1 || len(details.Fees) != 1 || len(details.Tokens) != 3 {
		t.Fatalf("details = %d vendors, %d rules, %d tokens; want 1, 1, 3",
			len(details.Vendors), len(details.Fees), len(details.Tokens))
	}
}

func TestManagerMarketsValidatesID(t *testing.T) {
	svc := NewOptionsService(&fakeOptionsStore{}, &fakeCatalogSource{}, nil)
	if _, err := svc.ManagerMarkets(context.Background(), 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.MarketFees(context.Background(), -1); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
