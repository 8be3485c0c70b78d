package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	env := getEnv("FMB_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: FMB_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "farmers_market")
	user := getEnv("POSTGRES_USER", "fmb")
	password := getEnv("POSTGRES_PASSWORD", "fmb")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	managerID, err := seedManager(ctx, pool)
	if err != nil {
		log.Fatalf("seed manager: %v", err)
	}
	fmt.Println("✓ Manager seeded")

	marketIDs, err := seedMarkets(ctx, pool, managerID)
	if err != nil {
		log.Fatalf("seed markets: %v", err)
	}
	fmt.Println("✓ Markets seeded")

	if err := seedVendors(ctx, pool, marketIDs); err != nil {
		log.Fatalf("seed vendors: %v", err)
	}
	fmt.Println("✓ Vendors seeded")

	if err := seedFees(ctx, pool, marketIDs); err != nil {
		log.Fatalf("seed fee rules: %v", err)
	}
	fmt.Println("✓ Fee rules seeded")

	if err := seedTokens(ctx, pool, marketIDs); err != nil {
		log.Fatalf("seed token catalogs: %v", err)
	}
	fmt.Println("✓ Token catalogs seeded")

	fmt.Println("Done.")
}

func seedManager(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx,
		`INSERT INTO market_managers (firstname, lastname, email)
		 VALUES ('Demo', 'Manager', 'demo.manager@example.com')
		 ON CONFLICT (email) DO UPDATE SET firstname = EXCLUDED.firstname
		 RETURNING id`,
	).Scan(&id)
	return id, err
}

func seedMarkets(ctx context.Context, pool *pgxpool.Pool, managerID int64) ([]int64, error) {
	names := []string{"Downtown Saturday", "Riverside Wednesday"}
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		var id int64
		err := pool.QueryRow(ctx,
			`INSERT INTO markets (manager_id, name) VALUES ($1, $2) RETURNING id`,
			managerID, name,
		).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedVendors(ctx context.Context, pool *pgxpool.Pool, marketIDs []int64) error {
	vendors := []struct {
		name string
		typ  string
	}{
		{"Hilltop Farm", "PRODUCER"},
		{"Bee Kind Honey", "PRODUCER"},
		{"Corner Bakery", "NON_PRODUCER"},
		{"Knife Sharpening Co", "ANCILLARY"},
	}

	for _, v := range vendors {
		var vendorID int64
		err := pool.QueryRow(ctx,
			`INSERT INTO vendors (business_name, type) VALUES ($1, $2) RETURNING id`,
			v.name, v.typ,
		).Scan(&vendorID)
		if err != nil {
			return err
		}
		for _, marketID := range marketIDs {
			_, err := pool.Exec(ctx,
				`INSERT INTO market_vendors (market_id, vendor_id) VALUES ($1, $2)
				 ON CONFLICT (market_id, vendor_id) DO NOTHING`,
				marketID, vendorID,
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func seedFees(ctx context.Context, pool *pgxpool.Pool, marketIDs []int64) error {
	rules := []struct {
		vendorType string
		feeType    string
		rate       string
		rate2      *string
	}{
		{"PRODUCER", "PERCENT_GROSS", "0.0500", nil},
		{"NON_PRODUCER", "FLAT_FEE", "20.0000", nil},
		{"ANCILLARY", "MAX_OF_EITHER", "15.0000", strPtr("0.0300")},
	}

	for _, marketID := range marketIDs {
		for _, r := range rules {
			_, err := pool.Exec(ctx,
				`INSERT INTO market_fees (market_id, vendor_type, fee_type, rate, rate_2)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (market_id, vendor_type) DO NOTHING`,
				marketID, r.vendorType, r.feeType, r.rate, r.rate2,
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func seedTokens(ctx context.Context, pool *pgxpool.Pool, marketIDs []int64) error {
	tokens := []struct {
		typ   string
		value string
	}{
		{"EBT", "1.0000"},
		{"MARKET_MATCH", "1.0000"},
		{"ATM", "5.0000"},
	}

	for _, marketID := range marketIDs {
		for _, tok := range tokens {
			_, err := pool.Exec(ctx,
				`INSERT INTO market_tokens (market_id, token_type, per_dollar_value)
				 VALUES ($1, $2, $3)`,
				marketID, tok.typ, tok.value,
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
