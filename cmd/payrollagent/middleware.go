package main

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/ctxkeys"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

type Middleware func(http.Handler) http.Handler

// Chain 第一个中间件在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recovery 把 handler 的 panic 转成 500 信封。http.ErrAbortHandler 继续向上抛，
// 由 net/http 中断连接。
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("handler panicked", append([]zap.Field{
					zap.Any("panic", v),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				}, ctxkeys.Fields(r.Context())...)...)
				handlers.WriteError(w, types.NewError(types.ErrInternalError, "internal server error"), logger)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

const maxRequestIDLen = 128

// RequestID 沿用客户端的 X-Request-ID，缺失或过长时生成 UUID
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(handlers.RequestIDHeader))
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(handlers.RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
		})
	}
}

// SecurityHeaders API 只返回 JSON 与事件流，不需要被嵌入或缓存
func SecurityHeaders() Middleware {
	headers := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Cache-Control", "no-store"},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range headers {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsPolicy 来源白名单，"*" 放行全部来源
type corsPolicy struct {
	any     bool
	origins map[string]bool
}

func newCORSPolicy(allowed []string) corsPolicy {
	p := corsPolicy{origins: make(map[string]bool, len(allowed))}
	for _, o := range allowed {
		if o == "*" {
			p.any = true
		}
		p.origins[strings.TrimRight(o, "/")] = true
	}
	return p
}

// allowOrigin 返回 Access-Control-Allow-Origin 的取值
func (p corsPolicy) allowOrigin(origin string) (string, bool) {
	switch {
	case p.any:
		return "*", true
	case p.origins[origin]:
		return origin, true
	}
	return "", false
}

// CORS 不在白名单的来源照常处理请求但不带 CORS 头，浏览器会拒绝读取；
// 它们的预检请求直接 403。
func CORS(allowed []string) Middleware {
	policy := newCORSPolicy(allowed)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			value, ok := policy.allowOrigin(origin)
			if !ok {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", value)
			if value != "*" {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Expose-Headers", handlers.RequestIDHeader+", Retry-After")
			if preflight {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+handlers.RequestIDHeader)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
