package allocation

import (
	"context"
	"fmt"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/batch"
)

// RemoveBatchCommand deletes an untouched batch; undo recreates it verbatim.
type RemoveBatchCommand struct {
	lifecycle
	env     env
	batchID id.ID

	removed *batch.Batch
}

// NewRemoveBatchCommand prepares a removal.
func NewRemoveBatchCommand(e env, batchID id.ID) *RemoveBatchCommand {
	return &RemoveBatchCommand{env: e, batchID: batchID}
}

func (c *RemoveBatchCommand) Name() string  { return "remove_batch" }
func (c *RemoveBatchCommand) Target() id.ID { return c.batchID }

func (c *RemoveBatchCommand) Describe() string {
	if c.removed != nil {
		return fmt.Sprintf("remove %s (%d x %s)", c.removed.Label(), c.removed.RemainingQuantity, c.removed.ProductCode)
	}
	return fmt.Sprintf("remove batch %s", id.Short(c.batchID))
}

func (c *RemoveBatchCommand) Execute(ctx context.Context) (Result, error) {
	if err := c.beginExecute(); err != nil {
		return failed(err), nil
	}
	if id.IsNil(c.batchID) {
		return c.fail(apperror.NewValidationField("batchId", "batch id is required")), nil
	}

	b, err := c.env.ledger.GetByID(ctx, c.batchID)
	if err != nil {
		return lookupFailure(&c.lifecycle, err)
	}
	usage, err := c.env.ledger.GetUsage(ctx, c.batchID)
	if err != nil {
		return lookupFailure(&c.lifecycle, err)
	}

	switch {
	case usage.PhysicalQuantity.IsPositive():
		return c.fail(apperror.NewBusinessRule(apperror.CodeBatchInPhysicalUse, "batch has stock on the physical shelf").
			WithDetail("batch_id", c.batchID).
			WithDetail("quantity", usage.PhysicalQuantity)), nil
	case usage.OnlineQuantity.IsPositive():
		return c.fail(apperror.NewBusinessRule(apperror.CodeBatchInOnlineUse, "batch has stock in the online pool").
			WithDetail("batch_id", c.batchID).
			WithDetail("quantity", usage.OnlineQuantity)), nil
	case usage.HasSales:
		return c.fail(apperror.NewBusinessRule(apperror.CodeBatchHasSales, "batch has sales history").
			WithDetail("batch_id", c.batchID)), nil
	}

	if err := c.env.ledger.Delete(ctx, c.batchID); err != nil {
		return c.fail(apperror.NewOperationFailure("delete batch", err)), nil
	}

	c.removed = b
	c.state = StateExecuted
	return succeeded(fmt.Sprintf("Removed %s", b.Label()), *b), nil
}

func (c *RemoveBatchCommand) Undo(ctx context.Context) (Result, error) {
	if err := c.beginUndo(); err != nil {
		return failed(err), nil
	}

	if err := c.env.ledger.Recreate(ctx, *c.removed); err != nil {
		c.state = StateUndoFailed
		return failed(apperror.NewOperationFailure("recreate batch", err)), nil
	}

	c.state = StateUndone
	return succeeded(fmt.Sprintf("Restored %s", c.removed.Label()), *c.removed), nil
}
