// Package specialist 实现四类领域专家（payroll、employee、compliance、general）。
//
// 专家是封闭的标签变体，路由结果只能选择其中之一。每个专家通过 Reason
// 返回下一步提议：工具调用、直接回答或检索上下文。
package specialist
