package allocation

import (
	"strings"
	"sync/atomic"
	"time"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
)

// DefaultCriticalDays is the expiry window within which a batch is reported
// as expiry-critical.
const DefaultCriticalDays = 30

// Selection is the outcome of running the active strategy.
type Selection struct {
	Batch       *batch.Batch   `json:"batch,omitempty"`
	Rationale   string         `json:"rationale"`
	Strategy    string         `json:"strategy"`
	ProductCode string         `json:"productCode"`
	Requested   types.Quantity `json:"requested"`
	Fulfillable types.Quantity `json:"fulfillable"`
}

// Found reports whether a batch was selected.
func (s Selection) Found() bool { return s.Batch != nil }

// Partial reports whether the selected batch cannot cover the request in full.
func (s Selection) Partial() bool {
	return s.Batch != nil && s.Fulfillable < s.Requested
}

type strategyHolder struct{ Strategy }

// Selector holds the active strategy. It caches no batches; callers pass the
// current candidate set on every call.
type Selector struct {
	strategy     atomic.Pointer[strategyHolder]
	criticalDays int
	now          func() time.Time
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithCriticalDays sets the expiry-critical window.
func WithCriticalDays(days int) SelectorOption {
	return func(s *Selector) {
		if days > 0 {
			s.criticalDays = days
		}
	}
}

// WithSelectorClock overrides the clock used for expiry wording.
func WithSelectorClock(now func() time.Time) SelectorOption {
	return func(s *Selector) { s.now = now }
}

// NewSelector creates a selector around strategy (FIFO-with-expiry when nil).
func NewSelector(strategy Strategy, opts ...SelectorOption) *Selector {
	s := &Selector{
		criticalDays: DefaultCriticalDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if strategy == nil {
		strategy = FIFOExpiry{}
	}
	s.SetStrategy(strategy)
	return s
}

// SetStrategy swaps the active strategy at runtime.
func (s *Selector) SetStrategy(strategy Strategy) {
	if strategy == nil {
		return
	}
	s.strategy.Store(&strategyHolder{strategy})
}

// Strategy returns the active strategy.
func (s *Selector) Strategy() Strategy {
	return s.strategy.Load().Strategy
}

// Select picks a batch of productCode for quantity and explains the pick.
// Batches of other products and batches without stock are ignored.
func (s *Selector) Select(batches []batch.Batch, productCode string, quantity types.Quantity) Selection {
	strategy := s.Strategy()
	productCode = strings.TrimSpace(productCode)

	candidates := make([]batch.Batch, 0, len(batches))
	for _, b := range batches {
		if b.ProductCode == productCode && b.HasStock() {
			candidates = append(candidates, b)
		}
	}

	sel := Selection{
		Strategy:    strategy.Name(),
		ProductCode: productCode,
		Requested:   quantity,
	}
	sel.Batch = strategy.Select(candidates, quantity)
	if sel.Batch != nil {
		sel.Fulfillable = quantity.Min(sel.Batch.RemainingQuantity)
	}
	sel.Rationale = explain(sel, candidates, s.now(), s.criticalDays)
	return sel
}
