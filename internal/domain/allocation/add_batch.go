package allocation

import (
	"context"
	"fmt"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
)

// AddBatchInput describes a goods receipt.
type AddBatchInput struct {
	ProductCode   string
	Quantity      types.Quantity
	PurchasePrice types.Money
	PurchaseDate  time.Time
	ExpiryDate    *time.Time
	Supplier      string
}

// AddBatchCommand creates a batch; undo deletes exactly that record.
type AddBatchCommand struct {
	lifecycle
	env   env
	input AddBatchInput

	created *batch.Batch
}

// NewAddBatchCommand prepares a receipt command.
func NewAddBatchCommand(e env, input AddBatchInput) *AddBatchCommand {
	return &AddBatchCommand{env: e, input: input}
}

func (c *AddBatchCommand) Name() string { return "add_batch" }

func (c *AddBatchCommand) Target() id.ID {
	if c.created == nil {
		return id.ID{}
	}
	return c.created.ID
}

func (c *AddBatchCommand) Describe() string {
	if c.created != nil {
		return fmt.Sprintf("add %s: %d x %s at %s", c.created.Label(), c.input.Quantity, c.input.ProductCode, c.input.PurchasePrice.StringFixed(2))
	}
	return fmt.Sprintf("add batch: %d x %s", c.input.Quantity, c.input.ProductCode)
}

// Created returns the batch record written by Execute.
func (c *AddBatchCommand) Created() *batch.Batch { return c.created }

func (c *AddBatchCommand) Execute(ctx context.Context) (Result, error) {
	if err := c.beginExecute(); err != nil {
		return failed(err), nil
	}

	b := batch.NewBatch(c.input.ProductCode, c.input.Quantity, c.input.PurchasePrice,
		c.input.PurchaseDate, c.input.ExpiryDate, c.input.Supplier)
	if err := b.Validate(c.env.clock()); err != nil {
		return c.fail(err), nil
	}

	if err := c.env.ledger.Create(ctx, b); err != nil {
		return c.fail(apperror.NewOperationFailure("create batch", err)), nil
	}

	c.created = b
	c.state = StateExecuted
	return succeeded(fmt.Sprintf("Added %s with %d units of %s", b.Label(), b.ReceivedQuantity, b.ProductCode), *b), nil
}

// Undo deletes the created batch. It refuses while the batch has been drawn
// from, so that undo never destroys downstream stock.
func (c *AddBatchCommand) Undo(ctx context.Context) (Result, error) {
	if err := c.beginUndo(); err != nil {
		return failed(err), nil
	}

	current, err := c.env.ledger.GetByID(ctx, c.created.ID)
	if err != nil {
		if apperror.IsNotFound(err) {
			c.state = StateUndoFailed
			return failed(err), nil
		}
		return Result{}, fmt.Errorf("get batch: %w", err)
	}
	usage, err := c.env.ledger.GetUsage(ctx, c.created.ID)
	if err != nil {
		return Result{}, fmt.Errorf("get usage: %w", err)
	}
	if current.RemainingQuantity != current.ReceivedQuantity || !usage.IsUntouched() {
		return failed(apperror.NewBusinessRule(apperror.CodeUndoNotSafe, "batch has already been drawn from").
			WithDetail("batch_id", current.ID).
			WithDetail("issued", current.IssuedQuantity())), nil
	}

	if err := c.env.ledger.Delete(ctx, c.created.ID); err != nil {
		c.state = StateUndoFailed
		return failed(apperror.NewOperationFailure("delete batch", err)), nil
	}

	c.state = StateUndone
	return succeeded(fmt.Sprintf("Removed %s again", c.created.Label()), *c.created), nil
}
