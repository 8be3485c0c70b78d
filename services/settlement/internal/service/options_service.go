package service

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
)

// AllMarketsID is the synthetic market id reporting clients send to mean
// "every market this manager runs".
const AllMarketsID int64 = 0

const allMarketsName = "All Markets"

type OptionsStore interface {
	ListManagerMarkets(ctx context.Context, managerID int64) ([]storage.Market, error)
	ListMarketVendors(ctx context.Context, marketID int64) ([]storage.MarketVendor, error)
	ListMarketFees(ctx context.Context, marketID int64) ([]fees.Rule, error)
}

// MarketDetails is everything a checkout client needs to run a market day:
// who can check out, what they owe, and which tokens the market accepts.
type MarketDetails struct {
	Vendors []storage.MarketVendor
	Fees    []fees.Rule
	Tokens  []storage.MarketToken
}

type OptionsService struct {
	store    OptionsStore
	catalogs CatalogSource
	logger   *slog.Logger
}

func NewOptionsService(store OptionsStore, catalogs CatalogSource, logger *slog.Logger) *OptionsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OptionsService{store: store, catalogs: catalogs, logger: logger}
}

func (s *OptionsService) ManagerMarkets(ctx context.Context, managerID int64) ([]storage.Market, error) {
	if managerID <= 0 {
		return nil, fmt.Errorf("%w: market_manager_id is required", storage.ErrInvalidInput)
	}
	return s.store.ListManagerMarkets(ctx, managerID)
}

// ReportingMarkets is ManagerMarkets with the synthetic all-markets entry
// prepended, so report clients can offer it alongside the real markets.
func (s *OptionsService) ReportingMarkets(ctx context.Context, managerID int64) ([]storage.Market, error) {
	markets, err := s.ManagerMarkets(ctx, managerID)
	if err != nil {
		return nil, err
	}
	all := storage.Market{ID: AllMarketsID, ManagerID: managerID, Name: allMarketsName}
	return append([]storage.Market{all}, markets...), nil
}

func (s *OptionsService) MarketFees(ctx context.Context, marketID int64) ([]fees.Rule, error) {
	if marketID <= 0 {
		return nil, fmt.Errorf("%w: market_id is required", storage.ErrInvalidInput)
	}
	return s.store.ListMarketFees(ctx, marketID)
}

// MarketDetails assembles the checkout bootstrap payload. A market date in
// the future is rejected because checkouts settle a day that has happened.
func (s *OptionsService) MarketDetails(ctx context.Context, marketID int64, marketDate time.Time) (*MarketDetails, error) {
	if marketID <= 0 {
		return nil, fmt.Errorf("%w: market_id is required", storage.ErrInvalidInput)
	}
	if !marketDate.IsZero() {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		if marketDate.After(today) {
			return nil, fmt.Errorf("%w: market_date %s is in the future",
				storage.ErrInvalidInput, marketDate.Format(marketDateFormat))
		}
	}

	vendors, err := s.store.ListMarketVendors(ctx, marketID)
	if err != nil {
		return nil, err
	}
	rules, err := s.store.ListMarketFees(ctx, marketID)
	if err != nil {
		return nil, err
	}
	tokens, err := s.catalogs.MarketTokens(ctx, marketID)
	if err != nil {
		return nil, err
	}

	return &MarketDetails{Vendors: vendors, Fees: rules, Tokens: tokens}, nil
}
