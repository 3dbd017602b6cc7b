package context

import (
	"context"

	"github.com/google/uuid"
)

// Origin names the entry point a unit of work came through.
type Origin string

const (
	OriginHTTP    Origin = "http"
	OriginConsole Origin = "console"
	OriginSeed    Origin = "seed"
	OriginWorker  Origin = "worker"
)

// TraceContext ties log lines and audit rows of one unit of work together.
// For HTTP it is one request; for stockctl it is one entered command.
type TraceContext struct {
	TraceID   string
	RequestID string
	Origin    Origin
}

type traceContextKey struct{}

// WithTrace stores tc in ctx.
func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTrace returns the TraceContext stored in ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceContextKey{}).(*TraceContext)
	return tc
}

// GetRequestID returns the request ID or "".
func GetRequestID(ctx context.Context) string {
	if tc := GetTrace(ctx); tc != nil {
		return tc.RequestID
	}
	return ""
}

// GetOrigin returns the origin or "".
func GetOrigin(ctx context.Context) Origin {
	if tc := GetTrace(ctx); tc != nil {
		return tc.Origin
	}
	return ""
}

// NewTraceContext starts a unit of work with fresh IDs. traceID is reused
// when the caller already has one (an OTel span, an upstream header).
func NewTraceContext(origin Origin, traceID string) *TraceContext {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return &TraceContext{
		TraceID:   traceID,
		RequestID: uuid.NewString(),
		Origin:    origin,
	}
}

// StartTrace is shorthand for WithTrace(ctx, NewTraceContext(origin, "")).
func StartTrace(ctx context.Context, origin Origin) context.Context {
	return WithTrace(ctx, NewTraceContext(origin, ""))
}
