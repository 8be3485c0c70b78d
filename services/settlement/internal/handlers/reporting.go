package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joesimop/farmers-backend/services/settlement/internal/service"
)

func (h *Handler) ReportingOptions(c *gin.Context) {
	managerID, ok := parseIDParam(c, "market_manager_id")
	if !ok {
		return
	}

	markets, err := h.Options.ReportingMarkets(c.Request.Context(), managerID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, marketItems(markets))
}

func (h *Handler) Report(c *gin.Context) {
	managerID, ok := parseIDParam(c, "market_manager_id")
	if !ok {
		return
	}

	// market_id 0 (or absent) means every market the manager runs.
	marketID := service.AllMarketsID
	if raw := strings.TrimSpace(c.Query("market_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid market_id")
			return
		}
		marketID = parsed
	}

	marketDate, ok := parseDateQuery(c, "market_date")
	if !ok {
		return
	}

	sortBy := service.SortMarketDate
	if raw := c.Query("sort_by"); strings.TrimSpace(raw) != "" {
		parsed, err := service.ParseSortOption(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid sort_by")
			return
		}
		sortBy = parsed
	}

	direction := service.SortDescending
	if raw := c.Query("sort_direction"); strings.TrimSpace(raw) != "" {
		parsed, err := service.ParseSortDirection(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid sort_direction")
			return
		}
		direction = parsed
	}

	report, err := h.Reports.Report(c.Request.Context(), service.ReportQuery{
		ManagerID:  managerID,
		MarketID:   marketID,
		MarketDate: marketDate,
		SortBy:     sortBy,
		Direction:  direction,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
