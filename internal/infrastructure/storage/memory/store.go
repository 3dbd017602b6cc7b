// Package memory is an in-process ledger used by the demo console and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
)

// Operation names accepted by FailOn.
const (
	OpList     = "list"
	OpGet      = "get"
	OpCreate   = "create"
	OpDelete   = "delete"
	OpRecreate = "recreate"
	OpChannels = "channels"
	OpAdjust   = "adjust"
	OpConsume  = "consume"
	OpRestore  = "restore"
	OpUsage    = "usage"
)

type state struct {
	batches  map[id.ID]batch.Batch
	channels map[id.ID]batch.ChannelStock
	sold     map[id.ID]types.Quantity
}

func (s state) clone() state {
	return state{
		batches:  maps.Clone(s.batches),
		channels: maps.Clone(s.channels),
		sold:     maps.Clone(s.sold),
	}
}

// Store implements batch.Ledger, tx.Manager and reports.Repository in memory.
type Store struct {
	mu    sync.RWMutex
	data  state
	fails map[string]error

	// txMu serializes transactions and writes made outside them, so a
	// rollback restores a snapshot nobody else has written past.
	txMu sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data: state{
			batches:  make(map[id.ID]batch.Batch),
			channels: make(map[id.ID]batch.ChannelStock),
			sold:     make(map[id.ID]types.Quantity),
		},
		fails: make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, op)
		return
	}
	s.fails[op] = err
}

func (s *Store) injected(op string) error {
	if err, ok := s.fails[op]; ok {
		return fmt.Errorf("memory %s: %w", op, err)
	}
	return nil
}

type txKey struct{}

// RunInTransaction snapshots the store and restores it when fn fails.
// Nested calls reuse the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// beginWrite takes txMu for a write outside a transaction and returns its
// release. Inside a transaction the lock is already held.
func (s *Store) beginWrite(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

// ListAvailable returns batches of productCode with remaining stock, oldest first.
func (s *Store) ListAvailable(_ context.Context, productCode string) ([]batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected(OpList); err != nil {
		return nil, err
	}

	productCode = strings.TrimSpace(productCode)
	out := make([]batch.Batch, 0)
	for _, b := range s.data.batches {
		if b.ProductCode == productCode && b.HasStock() {
			out = append(out, b)
		}
	}
	sortByPurchase(out)
	return out, nil
}

// List returns every batch, optionally of one product, oldest first.
func (s *Store) List(_ context.Context, productCode string) ([]batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]batch.Batch, 0, len(s.data.batches))
	for _, b := range s.data.batches {
		if productCode == "" || b.ProductCode == productCode {
			out = append(out, b)
		}
	}
	sortByPurchase(out)
	return out, nil
}

func (s *Store) GetByID(_ context.Context, batchID id.ID) (*batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected(OpGet); err != nil {
		return nil, err
	}

	b, ok := s.data.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("batch", batchID.String())
	}
	return &b, nil
}

func (s *Store) Create(ctx context.Context, b *batch.Batch) error {
	defer s.beginWrite(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCreate); err != nil {
		return err
	}
	return s.insert(*b)
}

func (s *Store) Recreate(ctx context.Context, b batch.Batch) error {
	defer s.beginWrite(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpRecreate); err != nil {
		return err
	}
	return s.insert(b)
}

func (s *Store) insert(b batch.Batch) error {
	if _, exists := s.data.batches[b.ID]; exists {
		return apperror.NewConflict("batch already exists").WithDetail("batch_id", b.ID.String())
	}
	s.data.batches[b.ID] = b
	return nil
}

func (s *Store) Delete(ctx context.Context, batchID id.ID) error {
	defer s.beginWrite(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpDelete); err != nil {
		return err
	}
	if _, ok := s.data.batches[batchID]; !ok {
		return apperror.NewNotFound("batch", batchID.String())
	}
	delete(s.data.batches, batchID)
	delete(s.data.channels, batchID)
	return nil
}

func (s *Store) GetChannelStock(_ context.Context, batchID id.ID) (batch.ChannelStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected(OpChannels); err != nil {
		return batch.ChannelStock{}, err
	}

	cs, ok := s.data.channels[batchID]
	if !ok {
		return batch.ChannelStock{BatchID: batchID}, nil
	}
	return cs, nil
}

// AdjustChannelStock upserts the channel row; the result may not go negative.
func (s *Store) AdjustChannelStock(ctx context.Context, batchID id.ID, ch batch.Channel, delta types.Quantity) error {
	defer s.beginWrite(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpAdjust); err != nil {
		return err
	}

	cs := s.data.channels[batchID]
	cs.BatchID = batchID
	switch ch {
	case batch.ChannelPhysical:
		cs.PhysicalQuantity += delta
	case batch.ChannelOnline:
		cs.OnlineQuantity += delta
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}
	if cs.PhysicalQuantity.IsNegative() || cs.OnlineQuantity.IsNegative() {
		return apperror.NewConcurrentModification("channel_stock", batchID.String())
	}
	s.data.channels[batchID] = cs
	return nil
}

func (s *Store) ConsumeRemaining(ctx context.Context, batchID id.ID, qty types.Quantity) error {
	defer s.beginWrite(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpConsume); err != nil {
		return err
	}

	b, ok := s.data.batches[batchID]
	if !ok {
		return apperror.NewNotFound("batch", batchID.String())
	}
	if b.RemainingQuantity < qty {
		return apperror.NewConcurrentModification("batch", batchID.String()).
			WithDetail("remaining", b.RemainingQuantity).
			WithDetail("requested", qty)
	}
	b.RemainingQuantity -= qty
	s.data.batches[batchID] = b
	return nil
}

func (s *Store) RestoreRemaining(ctx context.Context, batchID id.ID, qty types.Quantity) error {
	defer s.beginWrite(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpRestore); err != nil {
		return err
	}

	b, ok := s.data.batches[batchID]
	if !ok {
		return apperror.NewNotFound("batch", batchID.String())
	}
	if b.RemainingQuantity+qty > b.ReceivedQuantity {
		return apperror.NewConcurrentModification("batch", batchID.String()).
			WithDetail("remaining", b.RemainingQuantity).
			WithDetail("restore", qty)
	}
	b.RemainingQuantity += qty
	s.data.batches[batchID] = b
	return nil
}

func (s *Store) GetUsage(_ context.Context, batchID id.ID) (batch.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected(OpUsage); err != nil {
		return batch.Usage{}, err
	}
	if _, ok := s.data.batches[batchID]; !ok {
		return batch.Usage{}, apperror.NewNotFound("batch", batchID.String())
	}

	cs := s.data.channels[batchID]
	return batch.Usage{
		PhysicalQuantity: cs.PhysicalQuantity,
		OnlineQuantity:   cs.OnlineQuantity,
		HasSales:         s.data.sold[batchID].IsPositive(),
	}, nil
}

// RecordSale sells qty units of a batch out of a channel. Sales history blocks
// later removal of the batch.
func (s *Store) RecordSale(ctx context.Context, batchID id.ID, ch batch.Channel, qty types.Quantity) error {
	defer s.beginWrite(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !qty.IsPositive() {
		return apperror.NewValidationField("quantity", "quantity must be positive")
	}
	cs, ok := s.data.channels[batchID]
	if !ok || cs.Quantity(ch) < qty {
		return apperror.NewBusinessRule(apperror.CodeNoStockAvailable, "channel holds fewer units than sold").
			WithDetail("batch_id", batchID.String()).
			WithDetail("channel", string(ch))
	}
	if ch == batch.ChannelOnline {
		cs.OnlineQuantity -= qty
	} else {
		cs.PhysicalQuantity -= qty
	}
	s.data.channels[batchID] = cs
	s.data.sold[batchID] += qty
	return nil
}

func sortByPurchase(bs []batch.Batch) {
	slices.SortFunc(bs, func(a, b batch.Batch) int {
		if c := a.PurchaseDate.Compare(b.PurchaseDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}
