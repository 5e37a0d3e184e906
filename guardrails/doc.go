// Package guardrails 提供输入/输出护栏。
//
// 输入侧在 START 节点执行：空输入、超长或提示注入会直接拒绝，
// 美国常见 PII（SSN、银行卡、邮箱、电话）会在写入对话历史前替换为占位符。
// 输出侧在 ANSWER 节点执行：超长截断、PII 脱敏，以及内部实现细节的屏蔽。
package guardrails
