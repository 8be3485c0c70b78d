package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
	"github.com/shopspring/decimal"
)

type SortOption string

const (
	SortMarketDate   SortOption = "MARKET_DATE"
	SortBusinessName SortOption = "BUSINESS_NAME"
	SortGross        SortOption = "GROSS"
	SortFeesPaid     SortOption = "FEES_PAID"
)

func ParseSortOption(raw string) (SortOption, error) {
	switch SortOption(strings.ToUpper(strings.TrimSpace(raw))) {
	case SortMarketDate:
		return SortMarketDate, nil
	case SortBusinessName:
		return SortBusinessName, nil
	case SortGross:
		return SortGross, nil
	case SortFeesPaid:
		return SortFeesPaid, nil
	default:
		return "", fmt.Errorf("%w: sort field %q", storage.ErrInvalidInput, raw)
	}
}

type SortDirection string

const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

func ParseSortDirection(raw string) (SortDirection, error) {
	switch SortDirection(strings.ToUpper(strings.TrimSpace(raw))) {
	case SortAscending:
		return SortAscending, nil
	case SortDescending:
		return SortDescending, nil
	default:
		return "", fmt.Errorf("%w: sort direction %q", storage.ErrInvalidInput, raw)
	}
}

type ReportStore interface {
	FetchReportRows(ctx context.Context, managerID, marketID int64, marketDate *time.Time) ([]storage.ReportRow, error)
}

type CatalogSource interface {
	MarketTokens(ctx context.Context, marketID int64) ([]storage.MarketToken, error)
}

// TokenActivity is one token type's net movement for a single checkout.
// Every token type configured for the checkout's market appears, with a
// zero count when the checkout moved none of it.
type TokenActivity struct {
	MarketTokenID  int64           `json:"market_token_id"`
	Type           storage.TokenType `json:"type"`
	Count          int             `json:"count"`
	PerDollarValue decimal.Decimal `json:"per_dollar_value"`
}

type ReportRow struct {
	CheckoutID   int64           `json:"id"`
	BusinessName string          `json:"business_name"`
	MarketDate   string          `json:"market_date"`
	Gross        decimal.Decimal `json:"gross"`
	FeesPaid     decimal.Decimal `json:"fees_paid"`
	Tokens       []TokenActivity `json:"tokens"`
}

type TokenTotal struct {
	Type           storage.TokenType `json:"type"`
	Count          int             `json:"count"`
	PerDollarValue decimal.Decimal `json:"per_dollar_value"`
}

type ReportTotals struct {
	FeesPaid decimal.Decimal `json:"fees_paid"`
	Tokens   []TokenTotal    `json:"tokens"`
}

type Report struct {
	Rows   []ReportRow  `json:"rows"`
	Totals ReportTotals `json:"totals"`
}

type ReportQuery struct {
	ManagerID  int64
	MarketID   int64      // 0 means all markets the manager runs
	MarketDate *time.Time // nil means all dates
	SortBy     SortOption
	Direction  SortDirection
}

// ReportService rebuilds settlement totals from the ledger. The store hands
// back one flat join; grouping, zero-filling against the token catalogs,
// sorting, and the cross-checkout totals all happen here rather than in
// store-specific aggregate SQL.
type ReportService struct {
	store    ReportStore
	catalogs CatalogSource
	logger   *slog.Logger
	metrics  *Metrics
}

func NewReportService(store ReportStore, catalogs CatalogSource, logger *slog.Logger, metrics *Metrics) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{store: store, catalogs: catalogs, logger: logger, metrics: metrics}
}

func (s *ReportService) Report(ctx context.Context, q ReportQuery) (*Report, error) {
	start := time.Now()

	if q.SortBy == "" {
		q.SortBy = SortMarketDate
	}
	if q.Direction == "" {
		q.Direction = SortDescending
	}
	if _, err := ParseSortOption(string(q.SortBy)); err != nil {
		return nil, err
	}
	if _, err := ParseSortDirection(string(q.Direction)); err != nil {
		return nil, err
	}

	flat, err := s.store.FetchReportRows(ctx, q.ManagerID, q.MarketID, q.MarketDate)
	if err != nil {
		return nil, err
	}

	rows, err := s.groupByCheckout(ctx, flat)
	if err != nil {
		return nil, err
	}

	sortRows(rows, q.SortBy, q.Direction)

	report := &Report{
		Rows:   rows,
		Totals: buildTotals(rows),
	}
	s.metrics.ObserveReport(time.Since(start), len(rows))
	return report, nil
}

type checkoutGroup struct {
	checkoutID   int64
	marketID     int64
	businessName string
	marketDate   time.Time
	gross        decimal.Decimal
	feesPaid     decimal.Decimal
	deltas       map[int64]int
}

// groupByCheckout folds the flat join into one row per checkout, then
// expands each row against its market's token catalog so that every
// configured token type shows up even with zero activity. Insertion order
// of checkouts is preserved for the sort tie-break.
func (s *ReportService) groupByCheckout(ctx context.Context, flat []storage.ReportRow) ([]ReportRow, error) {
	groups := make(map[int64]*checkoutGroup)
	var order []int64

	for _, r := range flat {
		g, ok := groups[r.CheckoutID]
		if !ok {
			g = &checkoutGroup{
				checkoutID:   r.CheckoutID,
				marketID:     r.MarketID,
				businessName: r.BusinessName,
				marketDate:   r.MarketDate,
				gross:        r.Gross,
				feesPaid:     r.FeesPaid,
				deltas:       make(map[int64]int),
			}
			groups[r.CheckoutID] = g
			order = append(order, r.CheckoutID)
		}
		if r.TokenID != nil && r.Delta != nil {
			g.deltas[*r.TokenID] += *r.Delta
		}
	}

	catalogs := make(map[int64][]storage.MarketToken)
	rows := make([]ReportRow, 0, len(order))
	for _, checkoutID := range order {
		g := groups[checkoutID]

		catalog, ok := catalogs[g.marketID]
		if !ok {
			var err error
			catalog, err = s.catalogs.MarketTokens(ctx, g.marketID)
			if err != nil {
				return nil, fmt.Errorf("load token catalog for market %d: %w", g.marketID, err)
			}
			catalogs[g.marketID] = catalog
		}

		tokens := make([]TokenActivity, 0, len(catalog))
		for _, mt := range catalog {
			tokens = append(tokens, TokenActivity{
				MarketTokenID:  mt.ID,
				Type:           mt.Type,
				Count:          g.deltas[mt.ID],
				PerDollarValue: mt.PerDollarValue,
			})
		}

		rows = append(rows, ReportRow{
			CheckoutID:   g.checkoutID,
			BusinessName: g.businessName,
			MarketDate:   g.marketDate.Format(marketDateFormat),
			Gross:        g.gross,
			FeesPaid:     g.feesPaid,
			Tokens:       tokens,
		})
	}
	return rows, nil
}

// sortRows orders the grouped rows by the requested key. The sort is
// stable, so equal keys keep checkout insertion order; there is no
// secondary key.
func sortRows(rows []ReportRow, by SortOption, direction SortDirection) {
	less := func(a, b ReportRow) bool {
		switch by {
		case SortBusinessName:
			return a.BusinessName < b.BusinessName
		case SortGross:
			return a.Gross.LessThan(b.Gross)
		case SortFeesPaid:
			return a.FeesPaid.LessThan(b.FeesPaid)
		default:
			return a.MarketDate < b.MarketDate
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if direction == SortDescending {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

// buildTotals is an independent reduction over the grouped rows: summed
// fees plus one aggregate entry per token type. Token types appear in
// first-seen order; the per-dollar value is the first catalog value seen
// for that type.
func buildTotals(rows []ReportRow) ReportTotals {
	totals := ReportTotals{
		FeesPaid: decimal.Zero,
		Tokens:   []TokenTotal{},
	}

	index := make(map[storage.TokenType]int)
	for _, row := range rows {
		totals.FeesPaid = totals.FeesPaid.Add(row.FeesPaid)
		for _, token := range row.Tokens {
			idx, ok := index[token.Type]
			if !ok {
				index[token.Type] = len(totals.Tokens)
				totals.Tokens = append(totals.Tokens, TokenTotal{
					Type:           token.Type,
					Count:          token.Count,
					PerDollarValue: token.PerDollarValue,
				})
				continue
			}
			totals.Tokens[idx].Count += token.Count
		}
	}
	return totals
}
