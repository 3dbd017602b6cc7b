// Package audit defines the trail written for every executed and undone command.
package audit

import (
	"context"
	"time"

	appctx "stockflow/internal/core/context"
	"stockflow/internal/core/id"
)

// Action is the audited transition of a command.
type Action string

const (
	ActionExecute Action = "execute"
	ActionUndo    Action = "undo"
)

// Record is one audit entry.
type Record struct {
	ID        id.ID     `json:"id"`
	Command   string    `json:"command"`
	Action    Action    `json:"action"`
	BatchID   id.ID     `json:"batchId"`
	Success   bool      `json:"success"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Payload   any       `json:"payload,omitempty"`
	Operator  string    `json:"operator,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink stores audit records. Implementations must not retain r.Payload.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Record) error

func (f SinkFunc) Write(ctx context.Context, r Record) error { return f(ctx, r) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, Record) error { return nil })

// Enrich fills identity, timestamp and caller fields that are still empty.
func Enrich(ctx context.Context, r *Record) {
	if id.IsNil(r.ID) {
		r.ID = id.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Operator == "" {
		r.Operator = appctx.GetOperatorID(ctx)
	}
	if r.RequestID == "" {
		r.RequestID = appctx.GetRequestID(ctx)
	}
	if r.Origin == "" {
		r.Origin = string(appctx.GetOrigin(ctx))
	}
}
