package cli

import (
	"github.com/spf13/cobra"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/reports"
)

func newLowStockCmd(a *app) *cobra.Command {
	var (
		threshold int64
		products  []string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "low-stock",
		Short: "List products whose remaining stock is at or below a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.printer(cmd)
			report, err := a.session.Reports.LowStock(a.context(cmd), reports.LowStockFilter{
				Threshold:    types.Quantity(threshold),
				ProductCodes: products,
				Limit:        limit,
			})
			if err != nil {
				return p.failure(err)
			}
			return p.lowStock(report)
		},
	}
	cmd.Flags().Int64VarP(&threshold, "threshold", "t", 10, "report products with at most this many units left")
	cmd.Flags().StringSliceVarP(&products, "product", "p", nil, "restrict to these product codes")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")
	return cmd
}

func newExpiringCmd(a *app) *cobra.Command {
	var (
		days           int
		asOf           string
		includeExpired bool
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "expiring",
		Short: "List batches with stock that expire soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.printer(cmd)
			filter := reports.ExpiringFilter{
				Days:           days,
				IncludeExpired: includeExpired,
				Limit:          limit,
			}
			if asOf != "" {
				d, err := parseDay("as-of", asOf, a.now())
				if err != nil {
					return p.failure(err)
				}
				filter.AsOfDate = d
			}

			report, err := a.session.Reports.ExpiringSoon(a.context(cmd), filter)
			if err != nil {
				return p.failure(err)
			}
			return p.expiring(report)
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 30, "window in days")
	cmd.Flags().StringVar(&asOf, "as-of", "", "report date (default today)")
	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "also list batches already past expiry")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")
	return cmd
}
