package allocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
)

// IssueStockInput names the request and the batch already chosen for it.
type IssueStockInput struct {
	ProductCode string
	Quantity    types.Quantity
	Channel     batch.Channel
	Source      *batch.Batch
}

// IssueReceipt is the payload of a successful issue or its undo.
type IssueReceipt struct {
	BatchID   id.ID          `json:"batchId"`
	Channel   batch.Channel  `json:"channel"`
	Requested types.Quantity `json:"requested"`
	Issued    types.Quantity `json:"issued"`
}

// IssueStockCommand moves min(requested, remaining) units from a batch into a
// channel. It keeps only what undo needs: batch id, channel and issued amount.
type IssueStockCommand struct {
	lifecycle
	env   env
	input IssueStockInput

	batchID id.ID
	issued  types.Quantity
}

// NewIssueStockCommand prepares an issue from a pre-selected batch.
func NewIssueStockCommand(e env, input IssueStockInput) *IssueStockCommand {
	c := &IssueStockCommand{env: e, input: input}
	if input.Source != nil {
		c.batchID = input.Source.ID
	}
	return c
}

func (c *IssueStockCommand) Name() string  { return "issue_stock" }
func (c *IssueStockCommand) Target() id.ID { return c.batchID }

// Issued is the quantity actually moved by Execute.
func (c *IssueStockCommand) Issued() types.Quantity { return c.issued }

func (c *IssueStockCommand) Describe() string {
	src := "no batch"
	if c.input.Source != nil {
		src = c.input.Source.Label()
	}
	if c.state == StateExecuted || c.state == StateUndone || c.state == StateUndoFailed {
		return fmt.Sprintf("issue %d of %d x %s from %s to %s", c.issued, c.input.Quantity, c.input.ProductCode, src, c.input.Channel)
	}
	return fmt.Sprintf("issue %d x %s from %s to %s", c.input.Quantity, c.input.ProductCode, src, c.input.Channel)
}

func (c *IssueStockCommand) Execute(ctx context.Context) (Result, error) {
	if err := c.beginExecute(); err != nil {
		return failed(err), nil
	}
	if err := c.validate(c.env.clock()); err != nil {
		return c.fail(err), nil
	}

	src := c.input.Source
	issued := c.input.Quantity.Min(src.RemainingQuantity)

	err := c.env.txManager().RunInTransaction(ctx, func(ctx context.Context) error {
		if err := c.env.ledger.ConsumeRemaining(ctx, src.ID, issued); err != nil {
			return fmt.Errorf("consume remaining: %w", err)
		}
		if err := c.env.ledger.AdjustChannelStock(ctx, src.ID, c.input.Channel, issued); err != nil {
			return fmt.Errorf("adjust %s stock: %w", c.input.Channel, err)
		}
		return nil
	})
	if err != nil {
		return c.fail(apperror.NewOperationFailure("issue stock", err)), nil
	}

	c.issued = issued
	c.state = StateExecuted

	msg := fmt.Sprintf("Issued %d units of %s from %s to %s", issued, src.ProductCode, src.Label(), c.input.Channel)
	if issued < c.input.Quantity {
		msg += fmt.Sprintf(" (partial: %d requested)", c.input.Quantity)
	}
	return succeeded(msg, c.receipt()), nil
}

func (c *IssueStockCommand) validate(now time.Time) error {
	in := c.input
	if strings.TrimSpace(in.ProductCode) == "" {
		return apperror.NewValidationField("productCode", "product code is required")
	}
	if !in.Quantity.IsPositive() {
		return apperror.NewValidationField("quantity", "quantity must be positive").
			WithDetail("value", in.Quantity)
	}
	if in.Channel != batch.ChannelPhysical && in.Channel != batch.ChannelOnline {
		return apperror.NewValidationField("channel", "channel must be 'physical' or 'online'").
			WithDetail("value", string(in.Channel))
	}
	if in.Source == nil {
		return apperror.NewBusinessRule(apperror.CodeNoStockAvailable, "no batch has remaining stock").
			WithDetail("product_code", in.ProductCode)
	}
	if in.Source.ProductCode != strings.TrimSpace(in.ProductCode) {
		return apperror.NewBusinessRule(apperror.CodeProductMismatch, "batch belongs to a different product").
			WithDetail("requested_product", in.ProductCode).
			WithDetail("batch_product", in.Source.ProductCode)
	}
	if !in.Source.HasStock() {
		return apperror.NewBusinessRule(apperror.CodeBatchDepleted, "batch has no remaining stock").
			WithDetail("batch_id", in.Source.ID)
	}
	if in.Source.IsExpired(now) {
		return apperror.NewBusinessRule(apperror.CodeBatchExpired, "batch has expired").
			WithDetail("batch_id", in.Source.ID).
			WithDetail("expiry_date", in.Source.ExpiryDate.Format(time.DateOnly))
	}
	return nil
}

// Undo takes the issued units back out of the channel and returns them to the
// batch. Channel first, so allocations never exceed what was issued.
func (c *IssueStockCommand) Undo(ctx context.Context) (Result, error) {
	if err := c.beginUndo(); err != nil {
		return failed(err), nil
	}

	err := c.env.txManager().RunInTransaction(ctx, func(ctx context.Context) error {
		if err := c.env.ledger.AdjustChannelStock(ctx, c.batchID, c.input.Channel, c.issued.Neg()); err != nil {
			return fmt.Errorf("adjust %s stock: %w", c.input.Channel, err)
		}
		if err := c.env.ledger.RestoreRemaining(ctx, c.batchID, c.issued); err != nil {
			return fmt.Errorf("restore remaining: %w", err)
		}
		return nil
	})
	if err != nil {
		c.state = StateUndoFailed
		return failed(apperror.NewOperationFailure("undo issue", err)), nil
	}

	c.state = StateUndone
	return succeeded(fmt.Sprintf("Returned %d units from %s to batch %s", c.issued, c.input.Channel, id.Short(c.batchID)), c.receipt()), nil
}

func (c *IssueStockCommand) receipt() IssueReceipt {
	return IssueReceipt{
		BatchID:   c.batchID,
		Channel:   c.input.Channel,
		Requested: c.input.Quantity,
		Issued:    c.issued,
	}
}
