// Package ctxkeys 保存跨层传递的请求关联 ID。
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

type key struct{ name string }

var (
	traceIDKey   = &key{"trace_id"}
	requestIDKey = &key{"request_id"}
)

// 日志字段的输出顺序
var ordered = []*key{requestIDKey, traceIDKey}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID 空字符串视为不存在
func TraceID(ctx context.Context) (string, bool) { return lookup(ctx, traceIDKey) }

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) (string, bool) { return lookup(ctx, requestIDKey) }

// Fields 把 ctx 中存在的 ID 转成日志字段，键名即 request_id / trace_id
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	for _, k := range ordered {
		if v, ok := lookup(ctx, k); ok {
			fields = append(fields, zap.String(k.name, v))
		}
	}
	return fields
}

func lookup(ctx context.Context, k *key) (string, bool) {
	v, _ := ctx.Value(k).(string)
	return v, v != ""
}
