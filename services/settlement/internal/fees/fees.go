package fees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNegativeGross = errors.New("reported gross must be non-negative")

// VendorType classifies a vendor for fee-schedule purposes. Each market
// configures at most one fee rule per vendor type.
type VendorType string

const (
	VendorProducer    VendorType = "PRODUCER"
	VendorNonProducer VendorType = "NON_PRODUCER"
	VendorAncillary   VendorType = "ANCILLARY"
)

func ParseVendorType(raw string) (VendorType, error) {
	switch VendorType(strings.ToUpper(strings.TrimSpace(raw))) {
	case VendorProducer:
		return VendorProducer, nil
	case VendorNonProducer:
		return VendorNonProducer, nil
	case VendorAncillary:
		return VendorAncillary, nil
	default:
		return "", fmt.Errorf("unknown vendor type %q", raw)
	}
}

// FeeType selects the formula used to turn reported gross sales into the
// amount owed to the market operator.
type FeeType string

const (
	FlatFee          FeeType = "FLAT_FEE"
	PercentGross     FeeType = "PERCENT_GROSS"
	FlatPercentCombo FeeType = "FLAT_PERCENT_COMBO"
	MaxOfEither      FeeType = "MAX_OF_EITHER"
	GovFee           FeeType = "GOV_FEE"
)

func ParseFeeType(raw string) (FeeType, error) {
	switch FeeType(strings.ToUpper(strings.TrimSpace(raw))) {
	case FlatFee:
		return FlatFee, nil
	case PercentGross:
		return PercentGross, nil
	case FlatPercentCombo:
		return FlatPercentCombo, nil
	case MaxOfEither:
		return MaxOfEither, nil
	case GovFee:
		return GovFee, nil
	default:
		return "", fmt.Errorf("unknown fee type %q", raw)
	}
}

// Rule is one market's fee formula for one vendor type. Rate2 is optional;
// when nil the component it feeds defaults to zero.
type Rule struct {
	MarketID   int64
	VendorType VendorType
	Type       FeeType
	Rate       decimal.Decimal
	Rate2      *decimal.Decimal
}

// Breakdown decomposes a rule into a flat money component and a
// percentage-of-gross rate. How the two combine depends on the fee type.
type Breakdown struct {
	Type        FeeType
	Flat        decimal.Decimal
	PercentRate decimal.Decimal
}

// Compute decomposes the rule against the reported gross. The gross itself
// only participates later, in Total; it is validated here so callers reject
// bad input before touching the ledger.
func Compute(rule Rule, gross decimal.Decimal) (Breakdown, error) {
	if gross.IsNegative() {
		return Breakdown{}, ErrNegativeGross
	}

	b := Breakdown{Type: rule.Type, Flat: decimal.Zero, PercentRate: decimal.Zero}
	switch rule.Type {
	case FlatFee, FlatPercentCombo, MaxOfEither:
		b.Flat = rule.Rate
		b.PercentRate = rateOrZero(rule.Rate2)
	case PercentGross:
		b.Flat = rateOrZero(rule.Rate2)
		b.PercentRate = rule.Rate
	case GovFee:
		b.Flat = rule.Rate
	default:
		// Unrecognized fee types charge nothing rather than guessing.
	}
	return b, nil
}

// Total folds the breakdown against the gross. MAX_OF_EITHER takes the
// larger of the two components; every other type sums them.
func (b Breakdown) Total(gross decimal.Decimal) decimal.Decimal {
	percent := b.PercentRate.Mul(gross)
	if b.Type == MaxOfEither {
		if b.Flat.GreaterThanOrEqual(percent) {
			return b.Flat
		}
		return percent
	}
	return b.Flat.Add(percent)
}

func rateOrZero(rate *decimal.Decimal) decimal.Decimal {
	if rate == nil {
		return decimal.Zero
	}
	return *rate
}
