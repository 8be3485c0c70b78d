package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joesimop/farmers-backend/services/settlement/internal/fees"
	"github.com/joesimop/farmers-backend/services/settlement/internal/service"
	"github.com/joesimop/farmers-backend/services/settlement/internal/storage"
	"github.com/joesimop/farmers-backend/services/testutil"
	"github.com/shopspring/decimal"
)

type fakeCheckouts struct {
	id   int64
	err  error
	last *service.SubmitInput
}

func (f *fakeCheckouts) Submit(_ context.Context, in service.SubmitInput) (int64, error) {
	f.last = &in
	return f.id, f.err
}

type fakeOptions struct {
	markets []storage.Market
	rules   []fees.Rule
	details *service.MarketDetails
	err     error

	gotMarketID int64
	gotDate     time.Time
}

func (f *fakeOptions) ManagerMarkets(_ context.Context, _ int64) ([]storage.Market, error) {
	return f.markets, f.err
}

func (f *fakeOptions) ReportingMarkets(_ context.Context, managerID int64) ([]storage.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	all := storage.Market{ID: service.AllMarketsID, ManagerID: managerID, Name: "All Markets"}
	return append([]storage.Market{all}, f.markets...), nil
}

func (f *fakeOptions) MarketFees(_ context.Context, marketID int64) ([]fees.Rule, error) {
	f.gotMarketID = marketID
	return f.rules, f.err
}

func (f *fakeOptions) MarketDetails(_ context.Context, marketID int64, marketDate time.Time) (*service.MarketDetails, error) {
	f.gotMarketID = marketID
	f.gotDate = marketDate
	return f.details, f.err
}

type fakeReports struct {
	report *service.Report
	err    error
	last   *service.ReportQuery
}

func (f *fakeReports) Report(_ context.Context, q service.ReportQuery) (*service.Report, error) {
	f.last = &q
	return f.report, f.err
}

func newRouter(checkouts CheckoutSubmitter, options MarketOptions, reports ReportBuilder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	New(checkouts, options, reports, nil).Register(router)
	return router
}

func validSubmitBody() map[string]any {
	return map[string]any{
		"market_vendor_id": 7,
		"market_date":      "2024-06-01",
		"gross":            "250.00",
		"fees_paid":        "12.50",
		"tokens": []map[string]any{
			{"market_token_id": 4, "count": 10},
			{"market_token_id": 5, "count": -2},
		},
	}
}

func TestSubmitCheckoutCreated(t *testing.T) {
	checkouts := &fakeCheckouts{id: 101}
	router := newRouter(checkouts, &fakeOptions{}, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodPost, "/market_manager/5/checkout/submit", validSubmitBody())
	testutil.AssertHTTPStatus(t, resp, http.StatusCreated)

	var body submitCheckoutResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.CheckoutID != 101 || body.Status != "settled" {
		t.Fatalf("response = %+v", body)
	}

	if checkouts.last == nil {
		t.Fatal("service never called")
	}
	if checkouts.last.MarketVendorID != 7 {
		t.Fatalf("market_vendor_id = %d, want 7", checkouts.last.MarketVendorID)
	}
	if !checkouts.last.Gross.Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("gross = %s, want 250.00", checkouts.last.Gross)
	}
	if len(checkouts.last.Tokens) != 2 || checkouts.last.Tokens[1].Count != -2 {
		t.Fatalf("tokens = %+v", checkouts.last.Tokens)
	}
}

func TestSubmitCheckoutBadPayload(t *testing.T) {
	router := newRouter(&fakeCheckouts{}, &fakeOptions{}, &fakeReports{})

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"bad date", func(b map[string]any) { b["market_date"] = "June 1st" }},
		{"bad gross", func(b map[string]any) { b["gross"] = "lots" }},
		{"bad fees", func(b map[string]any) { b["fees_paid"] = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validSubmitBody()
			tc.mutate(body)
			resp := testutil.MakeAPIRequest(router, http.MethodPost, "/market_manager/5/checkout/submit", body)
			testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
		})
	}
}

func TestSubmitCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"unknown vendor", storage.ErrMarketVendorNotFound, testutil.ErrorCodeNotFound},
		{"foreign token", storage.ErrTokenNotInMarket, testutil.ErrorCodeNotFound},
		{"duplicate day", storage.ErrDuplicateCheckout, testutil.ErrorCodeConflict},
		{"negative gross", fees.ErrNegativeGross, testutil.ErrorCodeInvalidRequest},
		{"fee mismatch", service.ErrFeeMismatch, testutil.ErrorCodeInvalidRequest},
		{"storage failure", context.DeadlineExceeded, testutil.ErrorCodeInternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(&fakeCheckouts{err: tc.err}, &fakeOptions{}, &fakeReports{})
			resp := testutil.MakeAPIRequest(router, http.MethodPost, "/market_manager/5/checkout/submit", validSubmitBody())
			testutil.AssertErrorCode(t, resp, tc.wantCode)
		})
	}
}

func TestMarketDateOptions(t *testing.T) {
	options := &fakeOptions{markets: []storage.Market{
		{ID: 1, ManagerID: 5, Name: "Downtown Saturday"},
		{ID: 2, ManagerID: 5, Name: "Riverside Wednesday"},
	}}
	router := newRouter(&fakeCheckouts{}, options, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodGet, "/market_manager/5/checkout/market_date_options", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var items []marketItem
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 2 || items[0].Name != "Downtown Saturday" {
		t.Fatalf("items = %+v", items)
	}
}

func TestReportingOptionsPrependsAllMarkets(t *testing.T) {
	options := &fakeOptions{markets: []storage.Market{{ID: 1, ManagerID: 5, Name: "Downtown Saturday"}}}
	router := newRouter(&fakeCheckouts{}, options, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodGet, "/market_manager/5/reporting/options", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var items []marketItem
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 2 || items[0].ID != 0 || items[0].Name != "All Markets" {
		t.Fatalf("items = %+v", items)
	}
}

func TestMarketDetails(t *testing.T) {
	rate2 := decimal.RequireFromString("0.02")
	options := &fakeOptions{details: &service.MarketDetails{
		Vendors: []storage.MarketVendor{
			{ID: 7, MarketID: 1, VendorID: 21, BusinessName: "Hilltop Farm", VendorType: fees.VendorProducer},
		},
		Fees: []fees.Rule{
			{MarketID: 1, VendorType: fees.VendorProducer, Type: fees.FlatPercentCombo,
				Rate: decimal.RequireFromString("10"), Rate2: &rate2},
		},
		Tokens: []storage.MarketToken{
			{ID: 4, MarketID: 1, Type: storage.TokenEBT, PerDollarValue: decimal.RequireFromString("1")},
		},
	}}
	router := newRouter(&fakeCheckouts{}, options, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodGet,
		"/market_manager/5/checkout/market_details/1?market_date=2024-06-01", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var body marketDetailsResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Vendors) != 1 || body.Vendors[0].BusinessName != "Hilltop Farm" {
		t.Fatalf("vendors = %+v", body.Vendors)
	}
	if len(body.Fees) != 1 || body.Fees[0].Rate2 == nil || *body.Fees[0].Rate2 != "0.02" {
		t.Fatalf("fees = %+v", body.Fees)
	}
	if len(body.Tokens) != 1 || body.Tokens[0].TokenType != "EBT" {
		t.Fatalf("tokens = %+v", body.Tokens)
	}
	if options.gotMarketID != 1 {
		t.Fatalf("market id = %d, want 1", options.gotMarketID)
	}
}

func TestMarketDetailsRejectsBadParams(t *testing.T) {
	router := newRouter(&fakeCheckouts{}, &fakeOptions{}, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodGet,
		"/market_manager/5/checkout/market_details/zero", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)

	resp = testutil.MakeAPIRequest(router, http.MethodGet,
		"/market_manager/5/checkout/market_details/1?market_date=yesterday", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
}

func TestMarketFeesRequiresMarketID(t *testing.T) {
	router := newRouter(&fakeCheckouts{}, &fakeOptions{}, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodGet, "/market_manager/5/checkout/market_fees", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
}

func TestReportDefaultsAndFilters(t *testing.T) {
	reports := &fakeReports{report: &service.Report{
		Rows:   []service.ReportRow{},
		Totals: service.ReportTotals{FeesPaid: decimal.Zero, Tokens: []service.TokenTotal{}},
	}}
	router := newRouter(&fakeCheckouts{}, &fakeOptions{}, reports)

	resp := testutil.MakeAPIRequest(router, http.MethodGet, "/market_manager/5/reporting/report", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	if reports.last == nil {
		t.Fatal("service never called")
	}
	if reports.last.ManagerID != 5 || reports.last.MarketID != service.AllMarketsID {
		t.Fatalf("query = %+v", reports.last)
	}
	if reports.last.SortBy != service.SortMarketDate || reports.last.Direction != service.SortDescending {
		t.Fatalf("defaults = %s %s, want MARKET_DATE DESC", reports.last.SortBy, reports.last.Direction)
	}

	resp = testutil.MakeAPIRequest(router, http.MethodGet,
		"/market_manager/5/reporting/report?market_id=2&market_date=2024-06-01&sort_by=GROSS&sort_direction=ASC", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	if reports.last.MarketID != 2 || reports.last.MarketDate == nil {
		t.Fatalf("query = %+v", reports.last)
	}
	if reports.last.SortBy != service.SortGross || reports.last.Direction != service.SortAscending {
		t.Fatalf("sort = %s %s", reports.last.SortBy, reports.last.Direction)
	}
}

func TestReportRejectsUnknownSort(t *testing.T) {
	router := newRouter(&fakeCheckouts{}, &fakeOptions{}, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodGet,
		"/market_manager/5/reporting/report?sort_by=TOTAL", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)

	resp = testutil.MakeAPIRequest(router, http.MethodGet,
		"/market_manager/5/reporting/report?sort_direction=SIDEWAYS", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
}

func TestReportRejectsBadManagerID(t *testing.T) {
	router := newRouter(&fakeCheckouts{}, &fakeOptions{}, &fakeReports{})

	resp := testutil.MakeAPIRequest(router, http.MethodGet, "/market_manager/-1/reporting/report", nil)
	testutil.AssertErrorCode(t, resp, testutil.ErrorCodeInvalidRequest)
}
