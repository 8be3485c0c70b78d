package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/joesimop/farmers-backend/libs/kafka"
	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
	"github.com/shopspring/decimal"
)

var ErrFeeMismatch = errors.New("fees_paid does not match the configured fee rule")

const marketDateFormat = "2006-01-02"

type CheckoutStore interface {
	GetMarketVendor(ctx context.Context, marketVendorID int64) (*storage.MarketVendor, error)
	SubmitCheckout(ctx context.Context, req storage.SubmitCheckout) (int64, error)
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error)
}

type SubmitInput struct {
	MarketVendorID int64
	MarketDate     time.Time
	Gross          decimal.Decimal
	FeesPaid       decimal.Decimal
	Tokens         []storage.TokenCount
}

type checkoutSettledEvent struct {
	kafka.Envelope
	CheckoutID     int64  `json:"checkout_id"`
	MarketID       int64  `json:"market_id"`
	MarketVendorID int64  `json:"market_vendor_id"`
	BusinessName   string `json:"business_name"`
	MarketDate     string `json:"market_date"`
	Gross          string `json:"gross"`
	FeesPaid       string `json:"fees_paid"`
	TokenCount     int    `json:"token_count"`
}

// CheckoutService is the settlement write path: it validates a submission,
// optionally verifies the reported fees against the market's fee schedule,
// and hands the storage layer the whole unit to commit atomically.
type CheckoutService struct {
	store      CheckoutStore
	resolver   *FeeResolver
	publisher  EventPublisher
	topic      string
	strictFees bool
	logger     *slog.Logger
	metrics    *Metrics
}

func NewCheckoutService(store CheckoutStore, resolver *FeeResolver, publisher EventPublisher, topic string, strictFees bool, logger *slog.Logger, metrics *Metrics) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		store:      store,
		resolver:   resolver,
		publisher:  publisher,
		topic:      topic,
		strictFees: strictFees,
		logger:     logger,
		metrics:    metrics,
	}
}

func (s *CheckoutService) Submit(ctx context.Context, in SubmitInput) (int64, error) {
	if err := validateSubmitInput(in); err != nil {
		s.metrics.IncCheckout("invalid")
		return 0, err
	}

	vendor, err := s.store.GetMarketVendor(ctx, in.MarketVendorID)
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return 0, err
	}

	if err := s.verifyFees(ctx, vendor, in); err != nil {
		s.metrics.IncCheckout("rejected")
		return 0, err
	}

	checkoutID, err := s.store.SubmitCheckout(ctx, storage.SubmitCheckout{
		MarketVendorID: in.MarketVendorID,
		MarketDate:     in.MarketDate,
		Gross:          in.Gross,
		FeesPaid:       in.FeesPaid,
		Transactor:     storage.TransactorVendor,
		Tokens:         in.Tokens,
	})
	if err != nil {
		s.metrics.IncCheckout("failed")
		return 0, err
	}

	s.metrics.IncCheckout("settled")
	s.metrics.AddTokenDeltas(len(in.Tokens))
	s.publishSettled(ctx, checkoutID, vendor, in)
	return checkoutID, nil
}

// verifyFees is advisory by default: client-reported fees are accepted
// as-is when no rule exists for the vendor's type. In strict mode the
// reported amount must match the rule's computed total exactly.
func (s *CheckoutService) verifyFees(ctx context.Context, vendor *storage.MarketVendor, in SubmitInput) error {
	if !s.strictFees || s.resolver == nil {
		return nil
	}

	rule, err := s.resolver.Resolve(ctx, vendor.MarketID, vendor.VendorType)
	if err != nil {
		if errors.Is(err, storage.ErrNoFeeRule) {
			return nil
		}
		return err
	}

	breakdown, err := fees.Compute(*rule, in.Gross)
	if err != nil {
		return err
	}
	s.metrics.IncFeeComputation(string(rule.Type))

	owed := breakdown.Total(in.Gross)
	if !in.FeesPaid.Equal(owed) {
		return fmt.Errorf("%w: reported %s, owed %s", ErrFeeMismatch, in.FeesPaid, owed)
	}
	return nil
}

// publishSettled emits the settlement event after commit. Publication is
// best effort: a broker failure is logged, never surfaced to the vendor.
func (s *CheckoutService) publishSettled(ctx context.Context, checkoutID int64, vendor *storage.MarketVendor, in SubmitInput) {
	if s.publisher == nil || s.topic == "" {
		return
	}

	eventID := kafka.DeterministicEventID(
		fmt.Sprintf("%d", in.MarketVendorID),
		in.MarketDate.Format(marketDateFormat),
	)
	envelope, err := kafka.NewEnvelopeWithID(eventID, "checkout.settled", 1, "")
	if err != nil {
		s.logger.Error("settled event envelope failed", "error", err)
		return
	}

	event := checkoutSettledEvent{
		Envelope:       envelope,
		CheckoutID:     checkoutID,
		MarketID:       vendor.MarketID,
		MarketVendorID: in.MarketVendorID,
		BusinessName:   vendor.BusinessName,
		MarketDate:     in.MarketDate.Format(marketDateFormat),
		Gross:          in.Gross.String(),
		FeesPaid:       in.FeesPaid.String(),
		TokenCount:     len(in.Tokens),
	}

	if _, _, err := s.publisher.PublishJSON(ctx, s.topic, eventID, event); err != nil {
		s.logger.Error("settled event publish failed",
			"checkout_id", checkoutID, "topic", s.topic, "error", err)
	}
}

func validateSubmitInput(in SubmitInput) error {
	if in.MarketVendorID <= 0 {
		return fmt.Errorf("%w: market_vendor_id is required", storage.ErrInvalidInput)
	}
	if in.MarketDate.IsZero() {
		return fmt.Errorf("%w: market_date is required", storage.ErrInvalidInput)
	}
	if in.Gross.IsNegative() {
		return fees.ErrNegativeGross
	}
	if in.FeesPaid.IsNegative() {
		return fmt.Errorf("%w: fees_paid must be non-negative", storage.ErrInvalidInput)
	}
	for _, token := range in.Tokens {
		if token.MarketTokenID <= 0 {
			return fmt.Errorf("%w: market_token_id is required", storage.ErrInvalidInput)
		}
	}
	return nil
}
