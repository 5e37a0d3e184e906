// Package telemetry 封装 OpenTelemetry SDK 初始化，为执行引擎的
// graph.step span 和 HTTP 中间件提供 TracerProvider 与 MeterProvider。
// 禁用时保持全局 noop 实现，不连接任何外部服务。
package telemetry
