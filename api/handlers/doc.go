// Package handlers 提供 HR/Payroll Agent 的 HTTP 处理器。
//
// SessionHandler 驱动执行图引擎（运行、状态、检查点、取消、恢复）；
// ApprovalHandler 暴露审批工作流；StreamHandler 以 SSE 与 WebSocket
// 推送会话事件；HealthHandler 提供存活与就绪探针。
//
// 所有 JSON 响应包在 Envelope 里；引擎错误经 WriteEngineError 归类为
// 类型化错误码与 HTTP 状态。请求体按 validate 标签校验，校验失败的字段
// 写入 Problem.Details。
package handlers
