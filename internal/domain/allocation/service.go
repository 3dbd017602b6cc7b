package allocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/tx"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/batch"
	"stockflow/pkg/logger"
)

var tracer = otel.Tracer("stockflow/allocation")

// Service composes the selector and the command set, and keeps a single level
// of undo: the handle of the most recent successful command.
type Service struct {
	ledger      batch.Ledger
	txm         tx.Manager
	selector    *Selector
	audit       audit.Sink
	now         func() time.Time
	skipExpired bool
	eligibility *EligibilityRule

	mu   sync.Mutex
	last *Handle
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects the clock used for validation and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTxManager sets the transaction boundary for composite ledger writes.
func WithTxManager(txm tx.Manager) Option {
	return func(s *Service) { s.txm = txm }
}

// WithAudit sets the audit sink.
func WithAudit(sink audit.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithEligibility filters candidates through rule before selection.
func WithEligibility(rule *EligibilityRule) Option {
	return func(s *Service) { s.eligibility = rule }
}

// WithSkipExpired controls whether expired batches are dropped from candidates
// in Analyze and IssueStock. Enabled by default.
func WithSkipExpired(skip bool) Option {
	return func(s *Service) { s.skipExpired = skip }
}

// NewService creates the orchestrator.
func NewService(ledger batch.Ledger, selector *Selector, opts ...Option) *Service {
	if selector == nil {
		selector = NewSelector(nil)
	}
	s := &Service{
		ledger:      ledger,
		txm:         tx.Passthrough,
		selector:    selector,
		audit:       audit.Discard,
		now:         time.Now,
		skipExpired: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Selector returns the selection context, e.g. for a runtime strategy swap.
func (s *Service) Selector() *Selector { return s.selector }

func (s *Service) env() env {
	return env{ledger: s.ledger, tx: s.txm, now: s.now}
}

// Handle is the caller-visible token of one executed command.
type Handle struct {
	ID         id.ID
	ExecutedAt time.Time

	cmd Command
	svc *Service
}

func (h *Handle) Command() string  { return h.cmd.Name() }
func (h *Handle) Describe() string { return h.cmd.Describe() }
func (h *Handle) State() State     { return h.cmd.State() }
func (h *Handle) Target() id.ID    { return h.cmd.Target() }

// CanUndo reports whether this handle is still the latest and reversible.
func (h *Handle) CanUndo() bool {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	return h.svc.last == h && h.cmd.CanUndo()
}

// Undo reverses the command if it is still the latest one.
func (h *Handle) Undo(ctx context.Context) (Result, error) {
	return h.svc.undo(ctx, h)
}

// Outcome is a command result plus, on success, its handle.
type Outcome struct {
	Result
	Handle *Handle
}

// IssueOutcome adds the selection that led to the issue.
type IssueOutcome struct {
	Outcome
	Selection Selection
	Issued    types.Quantity
}

// IssueRequest asks for quantity units of productCode in a channel.
type IssueRequest struct {
	ProductCode string
	Quantity    types.Quantity
	Channel     batch.Channel
}

// SelectBatch runs the active strategy over exactly the given batches.
func (s *Service) SelectBatch(batches []batch.Batch, productCode string, quantity types.Quantity) Selection {
	return s.selector.Select(batches, productCode, quantity)
}

// Analyze previews the selection for a request without mutating anything.
func (s *Service) Analyze(ctx context.Context, productCode string, quantity types.Quantity) (Selection, error) {
	ctx, span := tracer.Start(ctx, "allocation.analyze", trace.WithAttributes(
		attribute.String("product_code", productCode),
		attribute.Int64("quantity", int64(quantity)),
	))
	defer span.End()

	if !quantity.IsPositive() {
		return Selection{}, apperror.NewValidationField("quantity", "quantity must be positive").
			WithDetail("value", quantity)
	}

	candidates, err := s.candidates(ctx, productCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Selection{}, err
	}
	return s.selector.Select(candidates, productCode, quantity), nil
}

// candidates loads the available batches and applies the expiry and
// eligibility filters.
func (s *Service) candidates(ctx context.Context, productCode string) ([]batch.Batch, error) {
	batches, err := s.ledger.ListAvailable(ctx, productCode)
	if err != nil {
		return nil, fmt.Errorf("list available batches: %w", err)
	}

	now := s.now()
	if s.skipExpired {
		kept := batches[:0:0]
		for _, b := range batches {
			if !b.IsExpired(now) {
				kept = append(kept, b)
			}
		}
		batches = kept
	}
	return s.eligibility.Filter(batches, now)
}

// AddBatch records a goods receipt.
func (s *Service) AddBatch(ctx context.Context, in AddBatchInput) (Outcome, error) {
	return s.run(ctx, NewAddBatchCommand(s.env(), in))
}

// RemoveBatch deletes a batch that has no downstream usage.
func (s *Service) RemoveBatch(ctx context.Context, batchID id.ID) (Outcome, error) {
	return s.run(ctx, NewRemoveBatchCommand(s.env(), batchID))
}

// IssueStock selects a batch for the request and issues from it. The issued
// amount may be lower than requested when no batch can cover it in full.
func (s *Service) IssueStock(ctx context.Context, req IssueRequest) (IssueOutcome, error) {
	var sel Selection
	if req.Quantity.IsPositive() {
		candidates, err := s.candidates(ctx, req.ProductCode)
		if err != nil {
			return IssueOutcome{}, err
		}
		sel = s.selector.Select(candidates, req.ProductCode, req.Quantity)
	}

	cmd := NewIssueStockCommand(s.env(), IssueStockInput{
		ProductCode: req.ProductCode,
		Quantity:    req.Quantity,
		Channel:     req.Channel,
		Source:      sel.Batch,
	})
	out, err := s.run(ctx, cmd)
	if err != nil {
		return IssueOutcome{}, err
	}
	return IssueOutcome{Outcome: out, Selection: sel, Issued: cmd.Issued()}, nil
}

func (s *Service) run(ctx context.Context, cmd Command) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "allocation."+cmd.Name())
	defer span.End()

	res, err := cmd.Execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(ctx, "command aborted", "command", cmd.Name(), "error", err)
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("batch_id", cmd.Target().String()))
	s.record(ctx, cmd, audit.ActionExecute, res)

	if !res.Success {
		span.SetStatus(codes.Error, res.Message)
		logger.Warn(ctx, "command rejected",
			"command", cmd.Describe(),
			"code", apperror.CodeOf(res.Err),
			"reason", res.Message,
		)
		return Outcome{Result: res}, nil
	}

	h := &Handle{ID: id.New(), ExecutedAt: s.now(), cmd: cmd, svc: s}
	s.mu.Lock()
	s.last = h
	s.mu.Unlock()

	logger.Info(ctx, "command executed", "command", cmd.Describe(), "handle", h.ID.String())
	return Outcome{Result: res, Handle: h}, nil
}

// UndoLast reverses the most recent successful command.
func (s *Service) UndoLast(ctx context.Context) (Result, error) {
	s.mu.Lock()
	h := s.last
	s.mu.Unlock()
	if h == nil {
		return failed(apperror.NewConflict("nothing to undo")), nil
	}
	return s.undo(ctx, h)
}

// UndoHandle reverses the command behind handleID if it is still the latest.
func (s *Service) UndoHandle(ctx context.Context, handleID id.ID) (Result, error) {
	s.mu.Lock()
	h := s.last
	s.mu.Unlock()
	if h == nil || h.ID != handleID {
		return failed(apperror.NewConflict("handle is no longer undoable").
			WithDetail("handle_id", handleID.String())), nil
	}
	return s.undo(ctx, h)
}

func (s *Service) undo(ctx context.Context, h *Handle) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != h {
		return failed(apperror.NewConflict("a newer command has superseded this one").
			WithDetail("handle_id", h.ID.String())), nil
	}

	ctx, span := tracer.Start(ctx, "allocation.undo", trace.WithAttributes(
		attribute.String("command", h.cmd.Name()),
		attribute.String("batch_id", h.cmd.Target().String()),
	))
	defer span.End()

	res, err := h.cmd.Undo(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(ctx, "undo aborted", "command", h.cmd.Describe(), "error", err)
		return Result{}, err
	}
	s.record(ctx, h.cmd, audit.ActionUndo, res)

	if !h.cmd.CanUndo() {
		s.last = nil
	}
	if !res.Success {
		span.SetStatus(codes.Error, res.Message)
		logger.Warn(ctx, "undo rejected",
			"command", h.cmd.Describe(),
			"state", h.cmd.State().String(),
			"code", apperror.CodeOf(res.Err),
		)
		return res, nil
	}

	logger.Info(ctx, "command undone", "command", h.cmd.Describe(), "handle", h.ID.String())
	return res, nil
}

// CanUndo reports whether UndoLast has something to reverse.
func (s *Service) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last != nil && s.last.cmd.CanUndo()
}

// LastHandle returns the undoable handle, or nil.
func (s *Service) LastHandle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || !s.last.cmd.CanUndo() {
		return nil
	}
	return s.last
}

// GetBatch returns one batch.
func (s *Service) GetBatch(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	return s.ledger.GetByID(ctx, batchID)
}

// ListAvailable returns the batches of productCode that still hold stock.
func (s *Service) ListAvailable(ctx context.Context, productCode string) ([]batch.Batch, error) {
	return s.ledger.ListAvailable(ctx, productCode)
}

// ChannelStock returns what has been issued from a batch per channel.
func (s *Service) ChannelStock(ctx context.Context, batchID id.ID) (batch.ChannelStock, error) {
	if _, err := s.ledger.GetByID(ctx, batchID); err != nil {
		return batch.ChannelStock{}, err
	}
	return s.ledger.GetChannelStock(ctx, batchID)
}

func (s *Service) record(ctx context.Context, cmd Command, action audit.Action, res Result) {
	r := audit.Record{
		Command: cmd.Name(),
		Action:  action,
		BatchID: cmd.Target(),
		Success: res.Success,
		Message: res.Message,
		Payload: res.Payload,
	}
	if !res.Success {
		r.Code = apperror.CodeOf(res.Err)
	}
	audit.Enrich(ctx, &r)
	if err := s.audit.Write(ctx, r); err != nil {
		logger.Warn(ctx, "audit write failed", "command", cmd.Name(), "error", err)
	}
}
