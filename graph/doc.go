// Package graph 实现 Agent 执行图引擎。
//
// 引擎是一个可恢复的状态机：
//
//	START → CLASSIFY → ROUTE → SPECIALIST_REASON ⇄ TOOL_GOVERN → TOOL_EXECUTE
//	                                             ↘ SUSPENDED_APPROVAL (等待人工审批)
//	ANSWER → TERMINAL
//
// 每次转换都先写入序号为 prev+1 的检查点，写入成功后才发出事件并继续执行。
// 检查点的 Node 字段是下一个要执行的节点，因此任何持久化的检查点都可以
// 通过 Recover 从原处继续。
//
// 高风险工具调用会把运行挂起在 SUSPENDED_APPROVAL，挂起期间不占用任何资源；
// 审批决定通过 Resume（或 approval.Workflow.Decide）恰好应用一次。
package graph
