package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
	"stockflow/internal/infrastructure/storage/memory"
)

var errDisk = errors.New("disk full")

func newEnv(store *memory.Store) env {
	return env{ledger: store, tx: store, now: fixedClock}
}

func seedBatch(t *testing.T, store *memory.Store, b batch.Batch) batch.Batch {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &b))
	return b
}

func receipt() AddBatchInput {
	return AddBatchInput{
		ProductCode:   "X",
		Quantity:      40,
		PurchasePrice: types.MustMoney("2.50"),
		PurchaseDate:  day("2024-12-20"),
		ExpiryDate:    dayPtr("2025-04-01"),
		Supplier:      "Fresh Farms",
	}
}

func TestAddBatch_ExecuteAndUndo(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cmd := NewAddBatchCommand(newEnv(store), receipt())

	res, err := cmd.Execute(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, StateExecuted, cmd.State())
	assert.True(t, cmd.CanUndo())

	created, err := store.GetByID(ctx, cmd.Target())
	require.NoError(t, err)
	assert.EqualValues(t, 40, created.RemainingQuantity)
	assert.Equal(t, "Fresh Farms", created.Supplier)

	res, err = cmd.Undo(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, StateUndone, cmd.State())
	assert.False(t, cmd.CanUndo())

	_, err = store.GetByID(ctx, cmd.Target())
	assert.True(t, apperror.IsNotFound(err))
}

func TestAddBatch_Validation(t *testing.T) {
	cases := map[string]func(*AddBatchInput){
		"zero quantity":          func(in *AddBatchInput) { in.Quantity = 0 },
		"negative price":         func(in *AddBatchInput) { in.PurchasePrice = types.MustMoney("-1") },
		"missing purchase date":  func(in *AddBatchInput) { in.PurchaseDate = day("0001-01-01") },
		"future purchase date":   func(in *AddBatchInput) { in.PurchaseDate = day("2025-01-02") },
		"expiry before purchase": func(in *AddBatchInput) { in.ExpiryDate = dayPtr("2024-12-19") },
		"blank product":          func(in *AddBatchInput) { in.ProductCode = "  " },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := memory.NewStore()
			in := receipt()
			mutate(&in)
			cmd := NewAddBatchCommand(newEnv(store), in)

			res, err := cmd.Execute(context.Background())
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, apperror.KindValidation, apperror.KindOf(res.Err))
			assert.Equal(t, StateFailed, cmd.State())

			all, _ := store.List(context.Background(), "")
			assert.Empty(t, all, "no batch created")
		})
	}
}

func TestAddBatch_CannotExecuteTwice(t *testing.T) {
	cmd := NewAddBatchCommand(newEnv(memory.NewStore()), receipt())

	res, err := cmd.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = cmd.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(res.Err))
	assert.Equal(t, StateExecuted, cmd.State())
}

func TestAddBatch_WriteFailureIsOperationFailure(t *testing.T) {
	store := memory.NewStore()
	store.FailOn(memory.OpCreate, errDisk)
	cmd := NewAddBatchCommand(newEnv(store), receipt())

	res, err := cmd.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.KindOperationFailure, apperror.KindOf(res.Err))
	assert.ErrorIs(t, res.Err, errDisk)
	assert.Equal(t, StateFailed, cmd.State())
}

func TestAddBatch_UndoRefusedOnceDrawnFrom(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	e := newEnv(store)
	add := NewAddBatchCommand(e, receipt())
	_, err := add.Execute(ctx)
	require.NoError(t, err)

	issue := NewIssueStockCommand(e, IssueStockInput{
		ProductCode: "X", Quantity: 5, Channel: batch.ChannelPhysical, Source: add.Created(),
	})
	res, err := issue.Execute(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = add.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.CodeUndoNotSafe, apperror.CodeOf(res.Err))
	assert.Equal(t, StateExecuted, add.State(), "refusal keeps the command undoable later")
}

func TestRemoveBatch_ExecuteAndUndoRecreatesIdenticalRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	original := seedBatch(t, store, mkBatch(30, "2024-12-01", "2025-02-01"))

	cmd := NewRemoveBatchCommand(newEnv(store), original.ID)
	res, err := cmd.Execute(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	_, err = store.GetByID(ctx, original.ID)
	require.True(t, apperror.IsNotFound(err))

	res, err = cmd.Undo(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	restored, err := store.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original, *restored)
}

func TestRemoveBatch_RejectsDownstreamUsage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(store *memory.Store, batchID id.ID)
		code  string
	}{
		{
			name: "physical stock",
			setup: func(store *memory.Store, batchID id.ID) {
				require.NoError(t, store.AdjustChannelStock(ctx, batchID, batch.ChannelPhysical, 3))
			},
			code: apperror.CodeBatchInPhysicalUse,
		},
		{
			name: "online stock",
			setup: func(store *memory.Store, batchID id.ID) {
				require.NoError(t, store.AdjustChannelStock(ctx, batchID, batch.ChannelOnline, 2))
			},
			code: apperror.CodeBatchInOnlineUse,
		},
		{
			name: "sales history",
			setup: func(store *memory.Store, batchID id.ID) {
				require.NoError(t, store.AdjustChannelStock(ctx, batchID, batch.ChannelOnline, 2))
				require.NoError(t, store.RecordSale(ctx, batchID, batch.ChannelOnline, 2))
			},
			code: apperror.CodeBatchHasSales,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			b := seedBatch(t, store, mkBatch(30, "2024-12-01", ""))
			tt.setup(store, b.ID)

			cmd := NewRemoveBatchCommand(newEnv(store), b.ID)
			res, err := cmd.Execute(ctx)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.code, apperror.CodeOf(res.Err))
			assert.Equal(t, apperror.KindBusinessRule, apperror.KindOf(res.Err))

			_, err = store.GetByID(ctx, b.ID)
			assert.NoError(t, err, "batch still present")
		})
	}
}

func TestRemoveBatch_UnknownBatch(t *testing.T) {
	cmd := NewRemoveBatchCommand(newEnv(memory.NewStore()), id.New())

	res, err := cmd.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, apperror.IsNotFound(res.Err))
	assert.Equal(t, StateFailed, cmd.State())
}

func TestRemoveBatch_UnreachableLedgerIsRaised(t *testing.T) {
	store := memory.NewStore()
	b := seedBatch(t, store, mkBatch(30, "2024-12-01", ""))
	store.FailOn(memory.OpGet, errDisk)

	cmd := NewRemoveBatchCommand(newEnv(store), b.ID)
	_, err := cmd.Execute(context.Background())

	require.ErrorIs(t, err, errDisk)
	assert.Equal(t, StateFailed, cmd.State())
}

func TestIssueStock_ExecuteAndUndoRestoresExactly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedBatch(t, store, mkBatch(20, "2024-12-01", "2025-01-10"))

	cmd := NewIssueStockCommand(newEnv(store), IssueStockInput{
		ProductCode: "X", Quantity: 15, Channel: batch.ChannelOnline, Source: &a,
	})
	res, err := cmd.Execute(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.EqualValues(t, 15, cmd.Issued())
	assert.Equal(t, IssueReceipt{BatchID: a.ID, Channel: batch.ChannelOnline, Requested: 15, Issued: 15}, res.Payload)

	got, _ := store.GetByID(ctx, a.ID)
	assert.EqualValues(t, 5, got.RemainingQuantity)
	cs, _ := store.GetChannelStock(ctx, a.ID)
	assert.EqualValues(t, 15, cs.OnlineQuantity)
	assert.EqualValues(t, 0, cs.PhysicalQuantity)

	res, err = cmd.Undo(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	got, _ = store.GetByID(ctx, a.ID)
	assert.EqualValues(t, 20, got.RemainingQuantity)
	cs, _ = store.GetChannelStock(ctx, a.ID)
	assert.EqualValues(t, 0, cs.OnlineQuantity)

	res, err = cmd.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success, "undo runs at most once")
}

func TestIssueStock_PartialFulfillment(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedBatch(t, store, mkBatch(20, "2024-12-01", "2025-01-10"))

	cmd := NewIssueStockCommand(newEnv(store), IssueStockInput{
		ProductCode: "X", Quantity: 60, Channel: batch.ChannelPhysical, Source: &a,
	})
	res, err := cmd.Execute(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.EqualValues(t, 20, cmd.Issued())
	assert.Contains(t, res.Message, "partial: 60 requested")

	got, _ := store.GetByID(ctx, a.ID)
	assert.EqualValues(t, 0, got.RemainingQuantity)
}

func TestIssueStock_FailsFastWithoutMutation(t *testing.T) {
	expired := mkBatch(10, "2024-11-01", "2024-12-31")
	depleted := mkBatch(0, "2024-11-01", "")
	other := mkBatch(10, "2024-11-01", "")
	other.ProductCode = "Y"
	fresh := mkBatch(10, "2024-11-01", "")

	tests := []struct {
		name  string
		input IssueStockInput
		kind  apperror.Kind
		code  string
	}{
		{"zero quantity", IssueStockInput{ProductCode: "X", Quantity: 0, Channel: batch.ChannelPhysical, Source: &fresh}, apperror.KindValidation, apperror.CodeValidation},
		{"bad channel", IssueStockInput{ProductCode: "X", Quantity: 1, Channel: "warehouse", Source: &fresh}, apperror.KindValidation, apperror.CodeValidation},
		{"no source", IssueStockInput{ProductCode: "X", Quantity: 1, Channel: batch.ChannelPhysical}, apperror.KindBusinessRule, apperror.CodeNoStockAvailable},
		{"product mismatch", IssueStockInput{ProductCode: "X", Quantity: 1, Channel: batch.ChannelPhysical, Source: &other}, apperror.KindBusinessRule, apperror.CodeProductMismatch},
		{"depleted", IssueStockInput{ProductCode: "X", Quantity: 1, Channel: batch.ChannelPhysical, Source: &depleted}, apperror.KindBusinessRule, apperror.CodeBatchDepleted},
		{"expired", IssueStockInput{ProductCode: "X", Quantity: 1, Channel: batch.ChannelPhysical, Source: &expired}, apperror.KindBusinessRule, apperror.CodeBatchExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			if tt.input.Source != nil {
				seedBatch(t, store, *tt.input.Source)
			}

			cmd := NewIssueStockCommand(newEnv(store), tt.input)
			res, err := cmd.Execute(ctx)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, apperror.KindOf(res.Err))
			assert.Equal(t, tt.code, apperror.CodeOf(res.Err))
			assert.Equal(t, StateFailed, cmd.State())

			if tt.input.Source != nil {
				got, _ := store.GetByID(ctx, tt.input.Source.ID)
				assert.Equal(t, tt.input.Source.RemainingQuantity, got.RemainingQuantity)
				cs, _ := store.GetChannelStock(ctx, tt.input.Source.ID)
				assert.Zero(t, cs.Total())
			}
		})
	}
}

func TestIssueStock_ChannelWriteFailureRollsBackConsume(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedBatch(t, store, mkBatch(20, "2024-12-01", ""))
	store.FailOn(memory.OpAdjust, errDisk)

	cmd := NewIssueStockCommand(newEnv(store), IssueStockInput{
		ProductCode: "X", Quantity: 5, Channel: batch.ChannelPhysical, Source: &a,
	})
	res, err := cmd.Execute(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.KindOperationFailure, apperror.KindOf(res.Err))
	assert.ErrorIs(t, res.Err, errDisk)

	got, _ := store.GetByID(ctx, a.ID)
	assert.EqualValues(t, 20, got.RemainingQuantity)
}

func TestIssueStock_UndoFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedBatch(t, store, mkBatch(20, "2024-12-01", ""))

	cmd := NewIssueStockCommand(newEnv(store), IssueStockInput{
		ProductCode: "X", Quantity: 5, Channel: batch.ChannelPhysical, Source: &a,
	})
	_, err := cmd.Execute(ctx)
	require.NoError(t, err)

	store.FailOn(memory.OpRestore, errDisk)
	res, err := cmd.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, apperror.KindOperationFailure, apperror.KindOf(res.Err))
	assert.Equal(t, StateUndoFailed, cmd.State())
	assert.False(t, cmd.CanUndo())

	got, _ := store.GetByID(ctx, a.ID)
	assert.EqualValues(t, 15, got.RemainingQuantity, "rolled back to the executed state")
	cs, _ := store.GetChannelStock(ctx, a.ID)
	assert.EqualValues(t, 5, cs.PhysicalQuantity)
}
