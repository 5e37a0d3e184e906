// Package api 是 HR/Payroll Agent HTTP API 的文档根。
//
// # 概览
//
// 服务通过 HTTP 暴露执行图引擎：
//   - POST /v1/run 开始一轮对话（分类、专家、受治理的工具调用）
//   - /v1/sessions/{id} 查询状态、检查点链、取消与恢复
//   - /v1/sessions/{id}/events (SSE) 与 /v1/sessions/{id}/ws (WebSocket) 事件流
//   - /v1/approvals 审批列表、详情与决定
//   - /health、/healthz、/ready、/version 健康检查；/metrics 在指标端口
//
// # 认证
//
// auth.enabled 为 true 时请求需携带 Bearer JWT：
//
//	Authorization: Bearer <token>
//
// 令牌的 sub 为调用者，roles 声明用于审批权限（auth.approver_role）。
//
// # 响应信封
//
// 所有 JSON 响应使用统一信封：
//
//	{"success": true, "data": {...}, "timestamp": "...", "request_id": "..."}
//	{"success": false, "error": {"code": "INVALID_SESSION", "message": "...", "retryable": false}}
//
// 处理器实现位于 api/handlers，文档注释采用 swag 注解：
//
//	swag init -g cmd/payrollagent/main.go -o api --parseDependency --parseInternal
package api
