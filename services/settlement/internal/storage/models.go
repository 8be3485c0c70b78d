package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/shopspring/decimal"
)

type TokenType string

const (
	TokenEBT         TokenType = "EBT"
	TokenMarketMatch TokenType = "MARKET_MATCH"
	TokenATM         TokenType = "ATM"
	TokenCustom      TokenType = "CUSTOM"
)

// TransactorType attributes a token delta to the actor that moved it.
type TransactorType string

const (
	TransactorVendor   TransactorType = "VENDOR"
	TransactorMarket   TransactorType = "MARKET"
	TransactorCustomer TransactorType = "CUSTOMER"
)

func ParseTransactorType(raw string) (TransactorType, error) {
	switch TransactorType(strings.ToUpper(strings.TrimSpace(raw))) {
	case TransactorVendor:
		return TransactorVendor, nil
	case TransactorMarket:
		return TransactorMarket, nil
	case TransactorCustomer:
		return TransactorCustomer, nil
	default:
		return "", fmt.Errorf("unknown transactor type %q", raw)
	}
}

type Market struct {
	ID        int64
	ManagerID int64
	Name      string
}

// MarketVendor is a vendor's membership in one market, joined with the
// vendor directory fields the settlement path needs.
type MarketVendor struct {
	ID           int64
	MarketID     int64
	VendorID     int64
	BusinessName string
	VendorType   fees.VendorType
}

// MarketToken is one entry in a market's token catalog.
type MarketToken struct {
	ID             int64           `json:"id"`
	MarketID       int64           `json:"market_id"`
	Type           TokenType       `json:"token_type"`
	PerDollarValue decimal.Decimal `json:"per_dollar_value"`
}

type VendorCheckout struct {
	ID             int64
	MarketVendorID int64
	MarketDate     time.Time
	Gross          decimal.Decimal
	FeesPaid       decimal.Decimal
	CreatedAt      time.Time
}

// TokenCount is a submitted token movement: positive counts are tokens
// taken in by the transactor, negative counts are redemptions.
type TokenCount struct {
	MarketTokenID int64
	Count         int
}

// SubmitCheckout is the full input to the one-transaction settlement write.
type SubmitCheckout struct {
	MarketVendorID int64
	MarketDate     time.Time
	Gross          decimal.Decimal
	FeesPaid       decimal.Decimal
	Transactor     TransactorType
	Tokens         []TokenCount
}

// ReportRow is one row of the flat report join: one row per
// (checkout, linked delta), or a single row with nil token columns for a
// checkout that moved no tokens. Rows arrive in checkout insertion order.
type ReportRow struct {
	CheckoutID   int64
	MarketID     int64
	BusinessName string
	MarketDate   time.Time
	Gross        decimal.Decimal
	FeesPaid     decimal.Decimal
	TokenID      *int64
	TokenType    *TokenType
	Delta        *int
}
