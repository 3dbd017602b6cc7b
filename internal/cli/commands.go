package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/batch"
)

func (a *app) printer(cmd *cobra.Command) printer {
	return printer{w: cmd.OutOrStdout(), json: a.jsonOut, now: a.now()}
}

func newAddCmd(a *app) *cobra.Command {
	var purchased, expiry, supplier string

	cmd := &cobra.Command{
		Use:   "add <product> <quantity> <price>",
		Short: "Receive a new batch",
		Example: `  stockctl add MILK-1L 120 0.89 --expiry +14 --supplier "Alpine Dairy"
  stockctl add RICE-5KG 40 6.95 --purchased 2025-01-03`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			in, err := a.addInput(args, purchased, expiry, supplier)
			if err != nil {
				return p.failure(err)
			}
			out, err := a.session.Allocation.AddBatch(a.context(cmd), in)
			if err != nil {
				return p.failure(err)
			}
			return p.result(out.Result, out.Handle)
		},
	}
	cmd.Flags().StringVar(&purchased, "purchased", "today", "purchase date: YYYY-MM-DD, today, or a day offset such as -3")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date: YYYY-MM-DD or a day offset such as +14 (empty for none)")
	cmd.Flags().StringVar(&supplier, "supplier", "", "supplier name")
	return cmd
}

func (a *app) addInput(args []string, purchased, expiry, supplier string) (allocation.AddBatchInput, error) {
	qty, err := parseQuantity(args[1])
	if err != nil {
		return allocation.AddBatchInput{}, err
	}
	price, err := types.NewMoneyFromString(args[2])
	if err != nil {
		return allocation.AddBatchInput{}, apperror.NewValidationField("purchasePrice", "price must be a decimal number").
			WithDetail("value", args[2])
	}
	purchaseDate, err := parseDay("purchased", purchased, a.now())
	if err != nil {
		return allocation.AddBatchInput{}, err
	}

	in := allocation.AddBatchInput{
		ProductCode:   args[0],
		Quantity:      qty,
		PurchasePrice: price,
		PurchaseDate:  purchaseDate,
		Supplier:      supplier,
	}
	if expiry != "" {
		d, err := parseDay("expiry", expiry, a.now())
		if err != nil {
			return allocation.AddBatchInput{}, err
		}
		in.ExpiryDate = &d
	}
	return in, nil
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <batch-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a batch that was never issued or sold",
		Long:    "Remove a batch. The id may be shortened to any unique prefix, such as the eight characters shown by list.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			ctx := a.context(cmd)
			batchID, err := a.resolveBatch(cmd, args[0])
			if err != nil {
				return p.failure(err)
			}
			out, err := a.session.Allocation.RemoveBatch(ctx, batchID)
			if err != nil {
				return p.failure(err)
			}
			return p.result(out.Result, out.Handle)
		},
	}
}

// resolveBatch accepts a full id, the short form shown by list, or a unique
// prefix of either.
func (a *app) resolveBatch(cmd *cobra.Command, ref string) (id.ID, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if full, err := id.Parse(ref); err == nil {
		return full, nil
	}
	if a.session.lister == nil || len(ref) < 4 {
		return id.ID{}, apperror.NewValidationField("batchId", "batch id must be a UUID").
			WithDetail("value", ref)
	}

	all, err := a.session.lister.List(a.context(cmd), "")
	if err != nil {
		return id.ID{}, err
	}
	var matches []id.ID
	for _, b := range all {
		if id.MatchesRef(b.ID, ref) {
			matches = append(matches, b.ID)
		}
	}
	switch len(matches) {
	case 0:
		return id.ID{}, apperror.NewNotFound("batch", ref)
	case 1:
		return matches[0], nil
	}
	return id.ID{}, apperror.NewValidationField("batchId", "batch id prefix is ambiguous").
		WithDetail("value", ref).
		WithDetail("matches", len(matches))
}

func newIssueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "issue <product> <quantity> <channel>",
		Short:   "Issue stock to the physical or online channel",
		Long:    "Issue stock. The active strategy picks one batch; if it cannot cover the request in full, what it holds is issued and the shortfall is reported.",
		Example: "  stockctl issue MILK-1L 30 physical\n  stockctl issue COFFEE-250 12 online",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			qty, err := parseQuantity(args[1])
			if err != nil {
				return p.failure(err)
			}
			ch, err := batch.ParseChannel(args[2])
			if err != nil {
				return p.failure(err)
			}

			out, err := a.session.Allocation.IssueStock(a.context(cmd), allocation.IssueRequest{
				ProductCode: args[0],
				Quantity:    qty,
				Channel:     ch,
			})
			if err != nil {
				return p.failure(err)
			}
			if !p.json && out.Selection.Strategy != "" {
				if err := p.selection(out.Selection); err != nil {
					return err
				}
			}
			return p.result(out.Result, out.Handle)
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <product> <quantity>",
		Short: "Show which batch would be chosen, without issuing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			qty, err := parseQuantity(args[1])
			if err != nil {
				return p.failure(err)
			}
			sel, err := a.session.Allocation.Analyze(a.context(cmd), args[0], qty)
			if err != nil {
				return p.failure(err)
			}
			return p.selection(sel)
		},
	}
}

func newUndoCmd(a *app) *cobra.Command {
	var handle string

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Undo the last successful command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.printer(cmd)
			ctx := a.context(cmd)
			svc := a.session.Allocation

			if handle == "" {
				last := svc.LastHandle()
				res, err := svc.UndoLast(ctx)
				if err != nil {
					return p.failure(err)
				}
				if res.Success && last != nil && !p.json {
					p.line("%s", dimStyle.Render("undid: "+last.Describe()))
				}
				return p.result(res, nil)
			}

			handleID, err := a.resolveHandle(handle)
			if err != nil {
				return p.failure(err)
			}
			res, err := svc.UndoHandle(ctx, handleID)
			if err != nil {
				return p.failure(err)
			}
			return p.result(res, nil)
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "only undo if this handle (full id or its short form) is still the latest")
	return cmd
}

// resolveHandle matches the short form printed after each command against the
// current undo slot.
func (a *app) resolveHandle(ref string) (id.ID, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if full, err := id.Parse(ref); err == nil {
		return full, nil
	}
	if last := a.session.Allocation.LastHandle(); last != nil && id.MatchesRef(last.ID, ref) {
		return last.ID, nil
	}
	return id.ID{}, apperror.NewConflict("handle is no longer undoable").WithDetail("handle_id", ref)
}

func newListCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "list [product]",
		Aliases: []string{"ls"},
		Short:   "List batches, optionally for one product",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			ctx := a.context(cmd)
			product := ""
			if len(args) == 1 {
				product = args[0]
			}

			var (
				bs  []batch.Batch
				err error
			)
			switch {
			case all || product == "":
				if a.session.lister == nil {
					return p.failure(apperror.NewValidation("listing every product is not supported by this backend"))
				}
				bs, err = a.session.lister.List(ctx, product)
			default:
				bs, err = a.session.Allocation.ListAvailable(ctx, product)
			}
			if err != nil {
				return p.failure(err)
			}

			title := "Batches"
			if product != "" {
				title += " of " + product
			}
			return p.batches(title, bs)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include batches with nothing left")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show one batch and what it has issued per channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			ctx := a.context(cmd)
			batchID, err := a.resolveBatch(cmd, args[0])
			if err != nil {
				return p.failure(err)
			}
			b, err := a.session.Allocation.GetBatch(ctx, batchID)
			if err != nil {
				return p.failure(err)
			}
			cs, err := a.session.Allocation.ChannelStock(ctx, batchID)
			if err != nil {
				return p.failure(err)
			}
			return p.channels(b, cs)
		},
	}
}

func newStrategyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "strategy [name]",
		Short:     "Show or switch the allocation strategy",
		Long:      "Show the active strategy, or switch it for the rest of the session. Known strategies: " + strings.Join(allocation.StrategyNames(), ", ") + ".",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: allocation.StrategyNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.printer(cmd)
			selector := a.session.Allocation.Selector()
			if len(args) == 1 {
				strategy, err := allocation.StrategyByName(args[0])
				if err != nil {
					return p.failure(err)
				}
				selector.SetStrategy(strategy)
			}

			active := selector.Strategy().Name()
			if p.json {
				return p.emit(map[string]any{"strategy": active, "available": allocation.StrategyNames()})
			}
			p.line("strategy: %s", titleStyle.Render(active))
			return nil
		},
	}
}

func parseQuantity(s string) (types.Quantity, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, apperror.NewValidationField("quantity", "quantity must be a whole number").
			WithDetail("value", s)
	}
	return types.Quantity(n), nil
}

// parseDay accepts YYYY-MM-DD, "today", or a signed day offset from today.
func parseDay(field, s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	if strings.EqualFold(s, "today") {
		return today, nil
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		if offset, err := strconv.Atoi(s); err == nil {
			return today.AddDate(0, 0, offset), nil
		}
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperror.NewValidationField(field, fmt.Sprintf("%s must be YYYY-MM-DD, today, or an offset like +7", field)).
			WithDetail("value", s)
	}
	return t, nil
}
