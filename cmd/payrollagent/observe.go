package main

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/ctxkeys"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/metrics"
)

const unmatchedRoute = "unmatched"

// routeOf 返回请求会命中的路由模式，去掉方法前缀：
// "GET /v1/sessions/{id}" -> "/v1/sessions/{id}"
func routeOf(routes *http.ServeMux, r *http.Request) string {
	if routes == nil {
		return unmatchedRoute
	}
	_, pattern := routes.Handler(r)
	if pattern == "" {
		return unmatchedRoute
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// Observe 为每个请求开启 server span，结束时写访问日志并记录 HTTP 指标。
// 路径标签取 routes 中匹配的路由模式，会话 ID 之类的动态段不会进入标签；
// 被认证或限流拦下的请求也按它将命中的路由计数。collector 可为 nil。
func Observe(logger *zap.Logger, collector *metrics.Collector, routes *http.ServeMux) Middleware {
	tracer := otel.Tracer("payrollagent/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			route := routeOf(routes, r)
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.HTTPRoute(route),
				),
			)
			defer span.End()
			if sc := span.SpanContext(); sc.HasTraceID() {
				ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
			}

			rw := handlers.NewStatusRecorder(w)
			next.ServeHTTP(rw, r.WithContext(ctx))
			elapsed := time.Since(start)

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.Status))
			if rw.Status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.Status))
			}

			if collector != nil {
				collector.RecordHTTPRequest(r.Method, route, rw.Status, elapsed, max(r.ContentLength, 0), rw.Bytes)
			}

			level := zapcore.InfoLevel
			if rw.Status >= http.StatusInternalServerError {
				level = zapcore.WarnLevel
			}
			if ce := logger.Check(level, "request"); ce != nil {
				ce.Write(append([]zap.Field{
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.String("path", r.URL.Path),
					zap.Int("status", rw.Status),
					zap.Int64("bytes", rw.Bytes),
					zap.Duration("duration", elapsed),
					zap.String("remote_addr", r.RemoteAddr),
				}, ctxkeys.Fields(ctx)...)...)
			}
		})
	}
}
