package batch

import (
	"context"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// Ledger persists batch records and per-channel quantities.
//
// Individual calls must be atomic. Composite writes are delimited by the caller
// through tx.Manager; implementations must honour the transaction carried in ctx.
type Ledger interface {
	// ListAvailable returns batches of productCode with remaining stock, oldest first.
	ListAvailable(ctx context.Context, productCode string) ([]Batch, error)

	// GetByID returns apperror NotFound when the batch does not exist.
	GetByID(ctx context.Context, batchID id.ID) (*Batch, error)

	// Create inserts a new batch.
	Create(ctx context.Context, b *Batch) error

	// Delete removes exactly the batch with batchID.
	Delete(ctx context.Context, batchID id.ID) error

	// Recreate inserts b with its original identity, quantities and dates.
	Recreate(ctx context.Context, b Batch) error

	// GetChannelStock returns zero quantities for a batch never issued.
	GetChannelStock(ctx context.Context, batchID id.ID) (ChannelStock, error)

	// AdjustChannelStock adds delta (may be negative) to the channel quantity
	// as one atomic upsert. The result may not go below zero.
	AdjustChannelStock(ctx context.Context, batchID id.ID, ch Channel, delta types.Quantity) error

	// ConsumeRemaining decreases remaining by qty only if remaining >= qty.
	ConsumeRemaining(ctx context.Context, batchID id.ID, qty types.Quantity) error

	// RestoreRemaining increases remaining by qty only if it stays <= received.
	RestoreRemaining(ctx context.Context, batchID id.ID, qty types.Quantity) error

	// GetUsage returns channel usage and sales history for removal checks.
	GetUsage(ctx context.Context, batchID id.ID) (Usage, error)
}
