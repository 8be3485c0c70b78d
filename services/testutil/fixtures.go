package testutil

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MarketFixture is a minimal but complete market setup: one manager, one
// market, one producer vendor attached to it, a flat fee rule, and two
// token entries. Integration tests build on top of it.
type MarketFixture struct {
	ManagerID      int64
	MarketID       int64
	VendorID       int64
	MarketVendorID int64
	EBTTokenID     int64
	ATMTokenID     int64
}

func SeedMarketFixture(ctx context.Context, pool *pgxpool.Pool, label string) (*MarketFixture, error) {
	f := &MarketFixture{}

	err := pool.QueryRow(ctx,
		`INSERT INTO market_managers (firstname, lastname, email)
		 VALUES ('Test', 'Manager', $1) RETURNING id`,
		fmt.Sprintf("%s@example.com", label),
	).Scan(&f.ManagerID)
	if err != nil {
		return nil, fmt.Errorf("seed manager: %w", err)
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO markets (manager_id, name) VALUES ($1, $2) RETURNING id`,
		f.ManagerID, fmt.Sprintf("%s market", label),
	).Scan(&f.MarketID)
	if err != nil {
		return nil, fmt.Errorf("seed market: %w", err)
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO vendors (business_name, type)
		 VALUES ($1, 'PRODUCER') RETURNING id`,
		fmt.Sprintf("%s farm", label),
	).Scan(&f.VendorID)
	if err != nil {
		return nil, fmt.Errorf("seed vendor: %w", err)
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO market_vendors (market_id, vendor_id)
		 VALUES ($1, $2) RETURNING id`,
		f.MarketID, f.VendorID,
	).Scan(&f.MarketVendorID)
	if err != nil {
		return nil, fmt.Errorf("seed market vendor: %w", err)
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO market_fees (market_id, vendor_type, fee_type, rate)
		 VALUES ($1, 'PRODUCER', 'FLAT_FEE', 15.0000)`,
		f.MarketID,
	)
	if err != nil {
		return nil, fmt.Errorf("seed fee rule: %w", err)
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO market_tokens (market_id, token_type, per_dollar_value)
		 VALUES ($1, 'EBT', 1.0000) RETURNING id`,
		f.MarketID,
	).Scan(&f.EBTTokenID)
	if err != nil {
		return nil, fmt.Errorf("seed ebt token: %w", err)
	}

	err = pool.QueryRow(ctx,
		`INSERT INTO market_tokens (market_id, token_type, per_dollar_value)
		 VALUES ($1, 'ATM', 5.0000) RETURNING id`,
		f.MarketID,
	).Scan(&f.ATMTokenID)
	if err != nil {
		return nil, fmt.Errorf("seed atm token: %w", err)
	}

	return f, nil
}

// RemoveMarketFixture deletes the fixture's reference rows. Settlement
// rows must already be gone (CleanupTestData).
func RemoveMarketFixture(ctx context.Context, pool *pgxpool.Pool, f *MarketFixture) error {
	queries := []string{
		fmt.Sprintf("DELETE FROM market_tokens WHERE market_id = %d", f.MarketID),
		fmt.Sprintf("DELETE FROM market_fees WHERE market_id = %d", f.MarketID),
		fmt.Sprintf("DELETE FROM market_vendors WHERE id = %d", f.MarketVendorID),
		fmt.Sprintf("DELETE FROM vendors WHERE id = %d", f.VendorID),
		fmt.Sprintf("DELETE FROM markets WHERE id = %d", f.MarketID),
		fmt.Sprintf("DELETE FROM market_managers WHERE id = %d", f.ManagerID),
	}
	for _, q := range queries {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("remove fixture: %w", err)
		}
	}
	return nil
}
