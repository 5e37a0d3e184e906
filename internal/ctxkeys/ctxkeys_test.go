package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIDs(t *testing.T) {
	ctx := context.Background()
	_, ok := TraceID(ctx)
	assert.False(t, ok)
	assert.Empty(t, Fields(ctx))

	ctx = WithTraceID(ctx, "4bf92f3577b34da6a3ce929d0e0e4736")
	ctx = WithRequestID(ctx, "req-1")

	trace, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", trace)

	req, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", req)

	assert.Equal(t, []zap.Field{
		zap.String("request_id", "req-1"),
		zap.String("trace_id", "4bf92f3577b34da6a3ce929d0e0e4736"),
	}, Fields(ctx))
}

func TestIDs_EmptyIsAbsent(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	_, ok := RequestID(ctx)
	assert.False(t, ok)
	assert.Empty(t, Fields(ctx))

	// 与同名字符串键互不干扰
	ctx = context.WithValue(context.Background(), "request_id", "spoofed")
	_, ok = RequestID(ctx)
	assert.False(t, ok)
}
