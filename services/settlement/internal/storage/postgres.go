package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/shopspring/decimal"
)

var (
	ErrMarketVendorNotFound = errors.New("market vendor not found")
	ErrMarketNotFound       = errors.New("market not found")
	ErrNoFeeRule            = errors.New("no fee rule configured for vendor type")
	ErrTokenNotInMarket     = errors.New("token does not belong to the vendor's market")
	ErrDuplicateCheckout    = errors.New("checkout already settled for this vendor and date")
	ErrInvalidInput         = errors.New("invalid input")
)

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// GetMarketVendor resolves a market_vendor id to the vendor and the market
// it belongs to.
func (s *Store) GetMarketVendor(ctx context.Context, marketVendorID int64) (*MarketVendor, error) {
	var mv MarketVendor
	var vendorType string
	row := s.pool.QueryRow(ctx, `
		SELECT mv.id, mv.market_id, mv.vendor_id, v.business_name, v.type
		FROM market_vendors mv
		JOIN vendors v ON mv.vendor_id = v.id
		WHERE mv.id = $1
	`, marketVendorID)
	if err := row.Scan(&mv.ID, &mv.MarketID, &mv.VendorID, &mv.BusinessName, &vendorType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrMarketVendorNotFound, marketVendorID)
		}
		return nil, err
	}
	vt, err := fees.ParseVendorType(vendorType)
	if err != nil {
		return nil, fmt.Errorf("market_vendor %d: %w", marketVendorID, err)
	}
	mv.VendorType = vt
	return &mv, nil
}

// ListManagerMarkets returns the markets run by one manager, oldest first.
func (s *Store) ListManagerMarkets(ctx context.Context, managerID int64) ([]Market, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, manager_id, name
		FROM markets
		WHERE manager_id = $1
		ORDER BY id
	`, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []Market
	for rows.Next() {
		var m Market
		if err := rows.Scan(&m.ID, &m.ManagerID, &m.Name); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *Store) ListMarketVendors(ctx context.Context, marketID int64) ([]MarketVendor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mv.id, mv.market_id, mv.vendor_id, v.business_name, v.type
		FROM market_vendors mv
		JOIN vendors v ON mv.vendor_id = v.id
		WHERE mv.market_id = $1
		ORDER BY v.business_name
	`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []MarketVendor
	for rows.Next() {
		var mv MarketVendor
		var vendorType string
		if err := rows.Scan(&mv.ID, &mv.MarketID, &mv.VendorID, &mv.BusinessName, &vendorType); err != nil {
			return nil, err
		}
		vt, err := fees.ParseVendorType(vendorType)
		if err != nil {
			return nil, err
		}
		mv.VendorType = vt
		vendors = append(vendors, mv)
	}
	return vendors, rows.Err()
}

// GetFeeRule looks up the fee rule for a (market, vendor type) pair.
func (s *Store) GetFeeRule(ctx context.Context, marketID int64, vendorType fees.VendorType) (*fees.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT market_id, vendor_type, fee_type, rate::text, rate_2::text
		FROM market_fees
		WHERE market_id = $1 AND vendor_type = $2
	`, marketID, string(vendorType))

	rule, err := scanFeeRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: market %d, %s", ErrNoFeeRule, marketID, vendorType)
		}
		return nil, err
	}
	return rule, nil
}

func (s *Store) ListMarketFees(ctx context.Context, marketID int64) ([]fees.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, vendor_type, fee_type, rate::text, rate_2::text
		FROM market_fees
		WHERE market_id = $1
		ORDER BY vendor_type
	`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeeRules(rows)
}

// ListAllFeeRules feeds the schedule cache.
func (s *Store) ListAllFeeRules(ctx context.Context) ([]fees.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, vendor_type, fee_type, rate::text, rate_2::text
		FROM market_fees
		ORDER BY market_id, vendor_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeeRules(rows)
}

// ListMarketTokens returns a market's token catalog in id order.
func (s *Store) ListMarketTokens(ctx context.Context, marketID int64) ([]MarketToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, token_type, per_dollar_value::text
		FROM market_tokens
		WHERE market_id = $1
		ORDER BY id
	`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []MarketToken
	for rows.Next() {
		var mt MarketToken
		var tokenType, valueStr string
		if err := rows.Scan(&mt.ID, &mt.MarketID, &tokenType, &valueStr); err != nil {
			return nil, err
		}
		mt.Type = TokenType(tokenType)
		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return nil, fmt.Errorf("parse per_dollar_value: %w", err)
		}
		mt.PerDollarValue = value
		tokens = append(tokens, mt)
	}
	return tokens, rows.Err()
}

// SubmitCheckout performs the whole settlement write as one transaction:
// checkout header, token deltas, link rows. Any failure rolls the entire
// unit back; no partial checkout is ever observable.
func (s *Store) SubmitCheckout(ctx context.Context, req SubmitCheckout) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	// The token membership check uses the vendor's market as resolved
	// here, never a market id supplied by the client.
	var marketID int64
	row := tx.QueryRow(ctx, `SELECT market_id FROM market_vendors WHERE id = $1`, req.MarketVendorID)
	if err := row.Scan(&marketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %d", ErrMarketVendorNotFound, req.MarketVendorID)
		}
		return 0, err
	}

	var checkoutID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO vendor_checkouts (market_vendor, market_date, gross, fees_paid)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, req.MarketVendorID, req.MarketDate, req.Gross.String(), req.FeesPaid.String()).Scan(&checkoutID)
	if err != nil {
		return 0, classifyCheckoutInsertError(err)
	}

	if len(req.Tokens) > 0 {
		deltaIDs, err := s.recordTokenDeltas(ctx, tx, marketID, req.Transactor, req.Tokens)
		if err != nil {
			return 0, err
		}
		if err := s.linkDeltasToCheckout(ctx, tx, checkoutID, deltaIDs); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	committed = true
	return checkoutID, nil
}

// recordTokenDeltas validates every submitted token against the market's
// catalog and inserts the whole batch, or nothing.
func (s *Store) recordTokenDeltas(ctx context.Context, tx pgx.Tx, marketID int64, transactor TransactorType, tokens []TokenCount) ([]int64, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM market_tokens WHERE market_id = $1`, marketID)
	if err != nil {
		return nil, err
	}
	catalog := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		catalog[id] = struct{}{}
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for _, token := range tokens {
		if _, ok := catalog[token.MarketTokenID]; !ok {
			return nil, fmt.Errorf("%w: market_token %d, market %d", ErrTokenNotInMarket, token.MarketTokenID, marketID)
		}
	}

	deltaIDs := make([]int64, 0, len(tokens))
	for _, token := range tokens {
		var deltaID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO token_deltas (market_token, transactor, delta)
			VALUES ($1, $2, $3)
			RETURNING id
		`, token.MarketTokenID, string(transactor), token.Count).Scan(&deltaID)
		if err != nil {
			return nil, classifyPgError(err)
		}
		deltaIDs = append(deltaIDs, deltaID)
	}
	return deltaIDs, nil
}

func (s *Store) linkDeltasToCheckout(ctx context.Context, tx pgx.Tx, checkoutID int64, deltaIDs []int64) error {
	for _, deltaID := range deltaIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO vendor_checkout_tokens (vendor_checkout, token_delta)
			VALUES ($1, $2)
		`, checkoutID, deltaID); err != nil {
			return classifyPgError(err)
		}
	}
	return nil
}

// FetchReportRows returns the flat settlement join for one manager,
// optionally narrowed to a market and/or a date. marketID 0 means all
// markets. Rows come back in checkout insertion order so the aggregation
// layer can rely on it for tie-breaking.
func (s *Store) FetchReportRows(ctx context.Context, managerID, marketID int64, marketDate *time.Time) ([]ReportRow, error) {
	query := `
		SELECT vc.id, mv.market_id, v.business_name, vc.market_date,
		       vc.gross::text, vc.fees_paid::text,
		       mt.id, mt.token_type, td.delta
		FROM vendor_checkouts vc
		JOIN market_vendors mv ON vc.market_vendor = mv.id
		JOIN vendors v ON mv.vendor_id = v.id
		JOIN markets m ON mv.market_id = m.id
		LEFT JOIN vendor_checkout_tokens vct ON vc.id = vct.vendor_checkout
		LEFT JOIN token_deltas td ON vct.token_delta = td.id
		LEFT JOIN market_tokens mt ON td.market_token = mt.id
		WHERE m.manager_id = $1`
	args := []any{managerID}

	if marketID != 0 {
		args = append(args, marketID)
		query += fmt.Sprintf(" AND mv.market_id = $%d", len(args))
	}
	if marketDate != nil {
		args = append(args, *marketDate)
		query += fmt.Sprintf(" AND vc.market_date = $%d", len(args))
	}
	query += " ORDER BY vc.id, mt.id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var report []ReportRow
	for rows.Next() {
		var r ReportRow
		var grossStr, feesStr string
		var tokenType *string
		if err := rows.Scan(&r.CheckoutID, &r.MarketID, &r.BusinessName, &r.MarketDate,
			&grossStr, &feesStr, &r.TokenID, &tokenType, &r.Delta); err != nil {
			return nil, err
		}
		if r.Gross, err = decimal.NewFromString(grossStr); err != nil {
			return nil, fmt.Errorf("parse gross: %w", err)
		}
		if r.FeesPaid, err = decimal.NewFromString(feesStr); err != nil {
			return nil, fmt.Errorf("parse fees_paid: %w", err)
		}
		if tokenType != nil {
			tt := TokenType(*tokenType)
			r.TokenType = &tt
		}
		report = append(report, r)
	}
	return report, rows.Err()
}

type feeRuleRow interface {
	Scan(dest ...any) error
}

func scanFeeRule(row feeRuleRow) (*fees.Rule, error) {
	var rule fees.Rule
	var vendorType, feeType, rateStr string
	var rate2Str *string
	if err := row.Scan(&rule.MarketID, &vendorType, &feeType, &rateStr, &rate2Str); err != nil {
		return nil, err
	}

	vt, err := fees.ParseVendorType(vendorType)
	if err != nil {
		return nil, err
	}
	ft, err := fees.ParseFeeType(feeType)
	if err != nil {
		return nil, err
	}
	rule.VendorType = vt
	rule.Type = ft

	if rule.Rate, err = decimal.NewFromString(rateStr); err != nil {
		return nil, fmt.Errorf("parse rate: %w", err)
	}
	if rate2Str != nil {
		rate2, err := decimal.NewFromString(*rate2Str)
		if err != nil {
			return nil, fmt.Errorf("parse rate_2: %w", err)
		}
		rule.Rate2 = &rate2
	}
	return &rule, nil
}

func collectFeeRules(rows pgx.Rows) ([]fees.Rule, error) {
	var rules []fees.Rule
	for rows.Next() {
		rule, err := scanFeeRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// classifyCheckoutInsertError maps constraint failures on the checkout
// header to domain errors: the (market_vendor, market_date) uniqueness is a
// duplicate settlement, a foreign key failure is an unknown vendor.
func classifyCheckoutInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicateCheckout, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrMarketVendorNotFound, pgErr.ConstraintName)
		case "23502", "23514":
			return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s", ErrTokenNotInMarket, pgErr.ConstraintName)
		case "23502", "23514":
			return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}
