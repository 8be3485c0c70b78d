package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/joesimop/farmers-backend/services/settlement/internal/service"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
	"github.com/shopspring/decimal"
)

type submitTokenRequest struct {
	MarketTokenID int64 `json:"market_token_id"`
	Count         int   `json:"count"`
}

type submitCheckoutRequest struct {
	MarketVendorID int64                `json:"market_vendor_id"`
	MarketDate     string               `json:"market_date"`
	Gross          string               `json:"gross"`
	FeesPaid       string               `json:"fees_paid"`
	Tokens         []submitTokenRequest `json:"tokens"`
}

type submitCheckoutResponse struct {
	CheckoutID int64  `json:"checkout_id"`
	Status     string `json:"status"`
}

type marketItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type vendorItem struct {
	MarketVendorID int64  `json:"market_vendor_id"`
	VendorID       int64  `json:"vendor_id"`
	BusinessName   string `json:"business_name"`
	VendorType     string `json:"vendor_type"`
}

type feeRuleItem struct {
	VendorType string  `json:"vendor_type"`
	FeeType    string  `json:"fee_type"`
	Rate       string  `json:"rate"`
	Rate2      *string `json:"rate_2,omitempty"`
}

type tokenItem struct {
	ID             int64  `json:"id"`
	TokenType      string `json:"token_type"`
	PerDollarValue string `json:"per_dollar_value"`
}

type marketDetailsResponse struct {
	Vendors []vendorItem  `json:"vendors"`
	Fees    []feeRuleItem `json:"fees"`
	Tokens  []tokenItem   `json:"tokens"`
}

func (h *Handler) SubmitCheckout(c *gin.Context) {
	if _, ok := parseIDParam(c, "market_manager_id"); !ok {
		return
	}

	var req submitCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	marketDate, err := time.Parse(marketDateFormat, strings.TrimSpace(req.MarketDate))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid market_date")
		return
	}
	gross, err := decimal.NewFromString(strings.TrimSpace(req.Gross))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid gross")
		return
	}
	feesPaid, err := decimal.NewFromString(strings.TrimSpace(req.FeesPaid))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid fees_paid")
		return
	}

	tokens := make([]storage.TokenCount, 0, len(req.Tokens))
	for _, tok := range req.Tokens {
		tokens = append(tokens, storage.TokenCount{MarketTokenID: tok.MarketTokenID, Count: tok.Count})
	}

	checkoutID, err := h.Checkouts.Submit(c.Request.Context(), service.SubmitInput{
		MarketVendorID: req.MarketVendorID,
		MarketDate:     marketDate,
		Gross:          gross,
		FeesPaid:       feesPaid,
		Tokens:         tokens,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submitCheckoutResponse{CheckoutID: checkoutID, Status: "settled"})
}

func (h *Handler) MarketDateOptions(c *gin.Context) {
	managerID, ok := parseIDParam(c, "market_manager_id")
	if !ok {
		return
	}

	markets, err := h.Options.ManagerMarkets(c.Request.Context(), managerID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, marketItems(markets))
}

func (h *Handler) MarketDetails(c *gin.Context) {
	if _, ok := parseIDParam(c, "market_manager_id"); !ok {
		return
	}
	marketID, ok := parseIDParam(c, "market_id")
	if !ok {
		return
	}
	datePtr, ok := parseDateQuery(c, "market_date")
	if !ok {
		return
	}
	var marketDate time.Time
	if datePtr != nil {
		marketDate = *datePtr
	}

	details, err := h.Options.MarketDetails(c.Request.Context(), marketID, marketDate)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	resp := marketDetailsResponse{
		Vendors: make([]vendorItem, 0, len(details.Vendors)),
		Fees:    feeRuleItems(details.Fees),
		Tokens:  make([]tokenItem, 0, len(details.Tokens)),
	}
	for _, v := range details.Vendors {
		resp.Vendors = append(resp.Vendors, vendorItem{
			MarketVendorID: v.ID,
			VendorID:       v.VendorID,
			BusinessName:   v.BusinessName,
			VendorType:     string(v.VendorType),
		})
	}
	for _, tok := range details.Tokens {
		resp.Tokens = append(resp.Tokens, tokenItem{
			ID:             tok.ID,
			TokenType:      string(tok.Type),
			PerDollarValue: tok.PerDollarValue.String(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MarketFees(c *gin.Context) {
	if _, ok := parseIDParam(c, "market_manager_id"); !ok {
		return
	}
	marketID, err := parseIDQuery(c, "market_id")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid market_id")
		return
	}

	rules, err := h.Options.MarketFees(c.Request.Context(), marketID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, feeRuleItems(rules))
}

func parseIDQuery(c *gin.Context, name string) (int64, error) {
	return parseID(c.Query(name))
}

func marketItems(markets []storage.Market) []marketItem {
	items := make([]marketItem, 0, len(markets))
	for _, m := range markets {
		items = append(items, marketItem{ID: m.ID, Name: m.Name})
	}
	return items
}

func feeRuleItems(rules []fees.Rule) []feeRuleItem {
	items := make([]feeRuleItem, 0, len(rules))
	for _, rule := range rules {
		item := feeRuleItem{
			VendorType: string(rule.VendorType),
			FeeType:    string(rule.Type),
			Rate:       rule.Rate.String(),
		}
		if rule.Rate2 != nil {
			val := rule.Rate2.String()
			item.Rate2 = &val
		}
		items = append(items, item)
	}
	return items
}
