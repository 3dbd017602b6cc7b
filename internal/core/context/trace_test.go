package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceContext(t *testing.T) {
	tc := NewTraceContext(OriginConsole, "")
	assert.NotEmpty(t, tc.TraceID)
	assert.NotEmpty(t, tc.RequestID)
	assert.NotEqual(t, tc.TraceID, tc.RequestID)
	assert.Equal(t, OriginConsole, tc.Origin)

	kept := NewTraceContext(OriginHTTP, "4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", kept.TraceID)
}

func TestStartTrace(t *testing.T) {
	ctx := StartTrace(context.Background(), OriginSeed)

	tc := GetTrace(ctx)
	require.NotNil(t, tc)
	assert.Equal(t, OriginSeed, GetOrigin(ctx))
	assert.Equal(t, tc.RequestID, GetRequestID(ctx))
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetTrace(ctx))
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetOrigin(ctx))
	assert.Empty(t, GetOperatorID(ctx))
	assert.False(t, HasRole(ctx, "stock:write"))
}

func TestHasRole(t *testing.T) {
	ctx := WithOperator(context.Background(), &Operator{Subject: "clerk-7", Roles: []string{"stock:write"}})
	assert.Equal(t, "clerk-7", GetOperatorID(ctx))
	assert.True(t, HasRole(ctx, "stock:write"))
	assert.False(t, HasRole(ctx, "admin"))
}
