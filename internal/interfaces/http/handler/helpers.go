package handler

import (
	"fmt"
	"strconv"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// toDecimalPtr converts a float64 to a *decimal.Decimal
func toDecimalPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

// toDecimal converts a float64 to a decimal.Decimal
func toDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// parseListFilter reads the common pagination and sorting query parameters
func parseListFilter(c *gin.Context) shared.Filter {
	filter := shared.DefaultFilter()

	if v := c.Query("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if v := c.Query("page_size"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 && size <= 100 {
			filter.PageSize = size
		}
	}
	if v := c.Query("order_by"); v != "" {
		filter.OrderBy = v
	}
	if v := c.Query("order_dir"); v == "asc" || v == "desc" {
		filter.OrderDir = v
	}
	filter.Search = c.Query("search")

	return filter
}

// errInvalidQueryParam builds the error for a malformed query parameter
func errInvalidQueryParam(name string) error {
	return fmt.Errorf("invalid %s query parameter", name)
}
