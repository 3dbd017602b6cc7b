package allocation

import (
	"context"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/tx"
	"stockflow/internal/domain/batch"
)

// State is the lifecycle position of a command instance.
//
//	Created -> Executed -> Undone
//	Created -> Failed
//	Executed -> UndoFailed
//
// Undone, Failed and UndoFailed are terminal.
type State int

const (
	StateCreated State = iota
	StateExecuted
	StateUndone
	StateFailed
	StateUndoFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateExecuted:
		return "executed"
	case StateUndone:
		return "undone"
	case StateFailed:
		return "failed"
	case StateUndoFailed:
		return "undo_failed"
	}
	return "unknown"
}

// Result is the non-throwing outcome of execute or undo. Callers branch on
// Success; Err carries the *apperror.AppError when Success is false.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
	Err     error  `json:"-"`
}

func succeeded(message string, payload any) Result {
	return Result{Success: true, Message: message, Payload: payload}
}

func failed(err error) Result {
	msg := err.Error()
	if appErr, ok := apperror.AsAppError(err); ok {
		msg = appErr.Message
	}
	return Result{Success: false, Message: msg, Err: err}
}

// Command is one mutating ledger operation plus its exact inverse.
// Execute runs at most once and Undo at most once.
//
// Both return a non-nil error only when the ledger could not be reached for a
// lookup; every other failure is a Result with Success=false.
type Command interface {
	Execute(ctx context.Context) (Result, error)
	Undo(ctx context.Context) (Result, error)
	CanUndo() bool
	Describe() string
	State() State

	// Name is a stable machine identifier (add_batch, remove_batch, issue_stock).
	Name() string
	// Target is the batch the command touches, nil before execution for add_batch.
	Target() id.ID
}

// env is what every command needs from its surroundings.
type env struct {
	ledger batch.Ledger
	tx     tx.Manager
	now    func() time.Time
}

func (e env) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

func (e env) txManager() tx.Manager {
	if e.tx == nil {
		return tx.Passthrough
	}
	return e.tx
}

// lifecycle enforces the state machine shared by all commands.
type lifecycle struct {
	state State
}

func (l *lifecycle) State() State { return l.state }

func (l *lifecycle) CanUndo() bool { return l.state == StateExecuted }

func (l *lifecycle) beginExecute() error {
	if l.state != StateCreated {
		return apperror.NewConflict("command has already been executed").
			WithDetail("state", l.state.String())
	}
	return nil
}

func (l *lifecycle) beginUndo() error {
	if l.state != StateExecuted {
		return apperror.NewConflict("command cannot be undone").
			WithDetail("state", l.state.String())
	}
	return nil
}

// fail moves the command to Failed and wraps err into a Result.
func (l *lifecycle) fail(err error) Result {
	l.state = StateFailed
	return failed(err)
}

// lookupFailure distinguishes a missing record (reported as a failed Result)
// from an unreachable ledger (raised).
func lookupFailure(l *lifecycle, err error) (Result, error) {
	if apperror.IsNotFound(err) {
		return l.fail(err), nil
	}
	l.state = StateFailed
	return Result{}, err
}
