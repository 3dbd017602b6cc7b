// Package ledger_repo provides the PostgreSQL implementation of batch.Ledger.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
	"stockflow/internal/infrastructure/storage/postgres"
)

const (
	tableBatches  = "batches"
	tableChannels = "batch_channel_stock"
	tableSales    = "batch_sales"
)

// PostgreSQL error codes the ledger maps to domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// BatchRepo implements batch.Ledger.
//
// Every single-row change is one conditional statement so that concurrent
// issues can never drive remaining or channel quantities negative.
type BatchRepo struct {
	txm        *postgres.TxManager
	builder    squirrel.StatementBuilderType
	selectCols []string
}

var _ batch.Ledger = (*BatchRepo)(nil)

// NewBatchRepo creates a ledger repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txm:        txm,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		selectCols: postgres.ExtractDBColumns[batch.Batch](),
	}
}

func (r *BatchRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(r.selectCols...).From(tableBatches)
}

func (r *BatchRepo) listAvailableQuery(productCode string) squirrel.SelectBuilder {
	return r.baseSelect().
		Where(squirrel.Eq{"product_code": productCode}).
		Where(squirrel.Gt{"remaining_quantity": 0}).
		OrderBy("purchase_date", "id")
}

func (r *BatchRepo) ListAvailable(ctx context.Context, productCode string) ([]batch.Batch, error) {
	sql, args, err := r.listAvailableQuery(productCode).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	batches := make([]batch.Batch, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list available batches: %w", err)
	}
	return batches, nil
}

func (r *BatchRepo) listQuery(productCode string) squirrel.SelectBuilder {
	q := r.baseSelect()
	if productCode != "" {
		q = q.Where(squirrel.Eq{"product_code": productCode})
	}
	return q.OrderBy("purchase_date", "id")
}

// List returns every batch, depleted ones included, optionally of one product.
func (r *BatchRepo) List(ctx context.Context, productCode string) ([]batch.Batch, error) {
	sql, args, err := r.listQuery(productCode).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	batches := make([]batch.Batch, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	sql, args, err := r.baseSelect().Where(squirrel.Eq{"id": batchID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get: %w", err)
	}

	var b batch.Batch
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

func (r *BatchRepo) insertQuery(b batch.Batch) squirrel.InsertBuilder {
	return r.builder.Insert(tableBatches).SetMap(postgres.StructToMap(b))
}

func (r *BatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	return r.insert(ctx, *b)
}

func (r *BatchRepo) Recreate(ctx context.Context, b batch.Batch) error {
	return r.insert(ctx, b)
}

func (r *BatchRepo) insert(ctx context.Context, b batch.Batch) error {
	sql, args, err := r.insertQuery(b).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return mapWriteErr(err, b.ID)
	}
	return nil
}

// Delete removes the batch together with its emptied channel rows.
func (r *BatchRepo) Delete(ctx context.Context, batchID id.ID) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txm.GetQuerier(ctx)

		sql, args, err := r.builder.Delete(tableChannels).
			Where(squirrel.Eq{"batch_id": batchID, "quantity": 0}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build channel cleanup: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("clear channel rows: %w", err)
		}

		sql, args, err = r.builder.Delete(tableBatches).Where(squirrel.Eq{"id": batchID}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return mapWriteErr(err, batchID)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewNotFound("batch", batchID.String())
		}
		return nil
	})
}

func (r *BatchRepo) channelStockQuery(batchID id.ID) squirrel.SelectBuilder {
	return r.builder.
		Select(
			"COALESCE(SUM(quantity) FILTER (WHERE channel = 'physical'), 0) AS physical_quantity",
			"COALESCE(SUM(quantity) FILTER (WHERE channel = 'online'), 0) AS online_quantity",
		).
		From(tableChannels).
		Where(squirrel.Eq{"batch_id": batchID})
}

func (r *BatchRepo) GetChannelStock(ctx context.Context, batchID id.ID) (batch.ChannelStock, error) {
	sql, args, err := r.channelStockQuery(batchID).ToSql()
	if err != nil {
		return batch.ChannelStock{}, fmt.Errorf("build channel stock: %w", err)
	}

	cs := batch.ChannelStock{BatchID: batchID}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &cs, sql, args...); err != nil {
		return batch.ChannelStock{}, fmt.Errorf("get channel stock: %w", err)
	}
	cs.BatchID = batchID
	return cs, nil
}

// adjustQuery is a single atomic upsert. A negative result fails the CHECK on
// insert and matches no row on update.
func (r *BatchRepo) adjustQuery(batchID id.ID, ch batch.Channel, delta types.Quantity) squirrel.InsertBuilder {
	return r.builder.Insert(tableChannels).
		Columns("batch_id", "channel", "quantity").
		Values(batchID, string(ch), delta).
		Suffix("ON CONFLICT (batch_id, channel) DO UPDATE " +
			"SET quantity = " + tableChannels + ".quantity + EXCLUDED.quantity " +
			"WHERE " + tableChannels + ".quantity + EXCLUDED.quantity >= 0")
}

func (r *BatchRepo) AdjustChannelStock(ctx context.Context, batchID id.ID, ch batch.Channel, delta types.Quantity) error {
	sql, args, err := r.adjustQuery(batchID, ch, delta).ToSql()
	if err != nil {
		return fmt.Errorf("build channel upsert: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return mapWriteErr(err, batchID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("channel_stock", batchID.String()).
			WithDetail("channel", string(ch)).
			WithDetail("delta", delta)
	}
	return nil
}

func (r *BatchRepo) consumeQuery(batchID id.ID, qty types.Quantity) squirrel.UpdateBuilder {
	return r.builder.Update(tableBatches).
		Set("remaining_quantity", squirrel.Expr("remaining_quantity - ?", qty)).
		Where(squirrel.Eq{"id": batchID}).
		Where(squirrel.GtOrEq{"remaining_quantity": qty})
}

func (r *BatchRepo) restoreQuery(batchID id.ID, qty types.Quantity) squirrel.UpdateBuilder {
	return r.builder.Update(tableBatches).
		Set("remaining_quantity", squirrel.Expr("remaining_quantity + ?", qty)).
		Where(squirrel.Eq{"id": batchID}).
		Where(squirrel.Expr("remaining_quantity + ? <= received_quantity", qty))
}

func (r *BatchRepo) ConsumeRemaining(ctx context.Context, batchID id.ID, qty types.Quantity) error {
	return r.conditionalUpdate(ctx, batchID, r.consumeQuery(batchID, qty))
}

func (r *BatchRepo) RestoreRemaining(ctx context.Context, batchID id.ID, qty types.Quantity) error {
	return r.conditionalUpdate(ctx, batchID, r.restoreQuery(batchID, qty))
}

func (r *BatchRepo) conditionalUpdate(ctx context.Context, batchID id.ID, q squirrel.UpdateBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return mapWriteErr(err, batchID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: either the batch is gone or the guard failed.
	if _, err := r.GetByID(ctx, batchID); err != nil {
		return err
	}
	return apperror.NewConcurrentModification("batch", batchID.String())
}

func (r *BatchRepo) usageQuery(batchID id.ID) squirrel.SelectBuilder {
	channelQty := func(ch batch.Channel) string {
		return fmt.Sprintf("COALESCE((SELECT c.quantity FROM %s c WHERE c.batch_id = b.id AND c.channel = '%s'), 0)",
			tableChannels, ch)
	}
	return r.builder.
		Select(
			channelQty(batch.ChannelPhysical)+" AS physical_quantity",
			channelQty(batch.ChannelOnline)+" AS online_quantity",
			"EXISTS (SELECT 1 FROM "+tableSales+" s WHERE s.batch_id = b.id) AS has_sales",
		).
		From(tableBatches + " b").
		Where(squirrel.Eq{"b.id": batchID})
}

func (r *BatchRepo) GetUsage(ctx context.Context, batchID id.ID) (batch.Usage, error) {
	sql, args, err := r.usageQuery(batchID).ToSql()
	if err != nil {
		return batch.Usage{}, fmt.Errorf("build usage: %w", err)
	}

	var u batch.Usage
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &u, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return batch.Usage{}, apperror.NewNotFound("batch", batchID.String())
		}
		return batch.Usage{}, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}

func mapWriteErr(err error, batchID id.ID) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return apperror.NewConflict("batch already exists").
			WithDetail("batch_id", batchID.String()).
			WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewBusinessRule(apperror.CodeBatchHasSales, "batch is still referenced downstream").
			WithDetail("batch_id", batchID.String()).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgCheckViolation:
		return apperror.NewConcurrentModification("batch", batchID.String()).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}
	return err
}
