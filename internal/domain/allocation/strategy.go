// Package allocation decides which batch to draw stock from and moves it into a
// channel through reversible commands.
package allocation

import (
	"bytes"
	"sort"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
)

// Strategy names accepted by configuration.
const (
	StrategyFIFOExpiry  = "fifo-expiry"
	StrategyLowestCost  = "lowest-cost"
	DefaultStrategyName = StrategyFIFOExpiry
)

// Strategy chooses the single best batch for a requested quantity.
// Implementations are pure: no I/O, no clock, no retained state.
type Strategy interface {
	Name() string

	// Select returns the batch to draw from, or nil when no candidate has
	// remaining stock. The returned batch is a copy.
	Select(candidates []batch.Batch, quantity types.Quantity) *batch.Batch
}

// rankFunc reports whether a should be drawn from before b.
type rankFunc func(a, b *batch.Batch) bool

// pickRanked prefers the top-ranked batch that covers quantity in full and
// falls back to the top-ranked batch with any stock (partial fulfillment).
func pickRanked(candidates []batch.Batch, quantity types.Quantity, less rankFunc) *batch.Batch {
	var sufficient, fallback *batch.Batch
	for i := range candidates {
		c := &candidates[i]
		if !c.HasStock() {
			continue
		}
		if fallback == nil || less(c, fallback) {
			fallback = c
		}
		if c.RemainingQuantity >= quantity && (sufficient == nil || less(c, sufficient)) {
			sufficient = c
		}
	}

	chosen := sufficient
	if chosen == nil {
		chosen = fallback
	}
	if chosen == nil {
		return nil
	}
	cp := *chosen
	return &cp
}

// FIFOExpiry draws from the earliest-expiring batch, oldest purchase first on ties.
type FIFOExpiry struct{}

func (FIFOExpiry) Name() string { return StrategyFIFOExpiry }

func (FIFOExpiry) Select(candidates []batch.Batch, quantity types.Quantity) *batch.Batch {
	return pickRanked(candidates, quantity, expiryThenPurchase)
}

// LowestCostFirst draws from the cheapest batch, falling back to expiry order on
// equal prices.
type LowestCostFirst struct{}

func (LowestCostFirst) Name() string { return StrategyLowestCost }

func (LowestCostFirst) Select(candidates []batch.Batch, quantity types.Quantity) *batch.Batch {
	return pickRanked(candidates, quantity, func(a, b *batch.Batch) bool {
		if cmp := a.PurchasePrice.Cmp(b.PurchasePrice); cmp != 0 {
			return cmp < 0
		}
		return expiryThenPurchase(a, b)
	})
}

func expiryThenPurchase(a, b *batch.Batch) bool {
	if !a.SameExpiry(b) {
		return a.ExpiresBefore(b)
	}
	if !a.PurchaseDate.Equal(b.PurchaseDate) {
		return a.PurchaseDate.Before(b.PurchaseDate)
	}
	// UUIDv7 ids are time-ordered, so this keeps earlier receipts first.
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

var strategies = map[string]func() Strategy{
	StrategyFIFOExpiry: func() Strategy { return FIFOExpiry{} },
	StrategyLowestCost: func() Strategy { return LowestCostFirst{} },
}

// StrategyByName resolves a configured strategy. Empty name means the default.
func StrategyByName(name string) (Strategy, error) {
	if name == "" {
		name = DefaultStrategyName
	}
	ctor, ok := strategies[name]
	if !ok {
		return nil, apperror.NewValidationField("strategy", "unknown allocation strategy").
			WithDetail("value", name).
			WithDetail("known", StrategyNames())
	}
	return ctor(), nil
}

// StrategyNames lists registered strategies in stable order.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
