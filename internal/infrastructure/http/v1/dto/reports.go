package dto

import (
	"stockflow/internal/core/types"
	"stockflow/internal/domain/reports"
)

// LowStockRequest holds the query of GET /reports/low-stock.
type LowStockRequest struct {
	Threshold    *int64   `form:"threshold"`
	ProductCodes []string `form:"productCode"`
	Limit        int      `form:"limit"`
	Offset       int      `form:"offset"`
}

// ToFilter applies the default threshold when none was given.
func (r LowStockRequest) ToFilter() reports.LowStockFilter {
	threshold := reports.DefaultLowStockThreshold
	if r.Threshold != nil {
		threshold = types.Quantity(*r.Threshold)
	}
	return reports.LowStockFilter{
		Threshold:    threshold,
		ProductCodes: r.ProductCodes,
		Limit:        r.Limit,
		Offset:       r.Offset,
	}
}

// ExpiringRequest holds the query of GET /reports/expiring.
type ExpiringRequest struct {
	Days           *int   `form:"days"`
	AsOf           string `form:"asOf"`
	IncludeExpired bool   `form:"includeExpired"`
	Limit          int    `form:"limit"`
	Offset         int    `form:"offset"`
}

// ToFilter parses the report date and applies the default window.
func (r ExpiringRequest) ToFilter() (reports.ExpiringFilter, error) {
	days := reports.DefaultExpiringDays
	if r.Days != nil {
		days = *r.Days
	}
	filter := reports.ExpiringFilter{
		Days:           days,
		IncludeExpired: r.IncludeExpired,
		Limit:          r.Limit,
		Offset:         r.Offset,
	}
	if r.AsOf != "" {
		d, err := ParseDate("asOf", r.AsOf)
		if err != nil {
			return reports.ExpiringFilter{}, err
		}
		filter.AsOfDate = d
	}
	return filter, nil
}
