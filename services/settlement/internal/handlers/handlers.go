package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/joesimop/farmers-backend/services/settlement/internal/service"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
)

const marketDateFormat = "2006-01-02"

type CheckoutSubmitter interface {
	Submit(ctx context.Context, in service.SubmitInput) (int64, error)
}

type MarketOptions interface {
	ManagerMarkets(ctx context.Context, managerID int64) ([]storage.Market, error)
	ReportingMarkets(ctx context.Context, managerID int64) ([]storage.Market, error)
	MarketFees(ctx context.Context, marketID int64) ([]fees.Rule, error)
	MarketDetails(ctx context.Context, marketID int64, marketDate time.Time) (*service.MarketDetails, error)
}

type ReportBuilder interface {
	Report(ctx context.Context, q service.ReportQuery) (*service.Report, error)
}

type Handler struct {
	Checkouts CheckoutSubmitter
	Options   MarketOptions
	Reports   ReportBuilder
	Logger    *slog.Logger
}

func New(checkouts CheckoutSubmitter, options MarketOptions, reports ReportBuilder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Checkouts: checkouts, Options: options, Reports: reports, Logger: logger}
}

func (h *Handler) Register(r *gin.Engine) {
	manager := r.Group("/market_manager/:market_manager_id")

	checkout := manager.Group("/checkout")
	checkout.GET("/market_date_options", h.MarketDateOptions)
	checkout.GET("/market_details/:market_id", h.MarketDetails)
	checkout.GET("/market_fees", h.MarketFees)
	checkout.POST("/submit", h.SubmitCheckout)

	reporting := manager.Group("/reporting")
	reporting.GET("/options", h.ReportingOptions)
	reporting.GET("/report", h.Report)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

// writeServiceError maps domain errors onto the wire: broken references
// are 404, the one-checkout-per-market-day rule is 409, bad input is 400,
// anything else is a logged 500.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, fees.ErrNegativeGross),
		errors.Is(err, service.ErrFeeMismatch):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, storage.ErrMarketVendorNotFound),
		errors.Is(err, storage.ErrMarketNotFound),
		errors.Is(err, storage.ErrTokenNotInMarket),
		errors.Is(err, storage.ErrNoFeeRule):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, storage.ErrDuplicateCheckout):
		writeError(c, http.StatusConflict, "CONFLICT", err.Error())
	default:
		h.Logger.Error("settlement request failed", "path", c.FullPath(), "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid "+name)
		return 0, false
	}
	return id, true
}

func parseDateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(marketDateFormat, raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid "+name)
		return nil, false
	}
	return &parsed, true
}
