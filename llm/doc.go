// Package llm 定义执行图依赖的模型协作方契约。
//
// Generator 与 Classifier 是不透明的外部调用；失败时返回 ErrModelUnavailable
// （可重试）或 ErrModelRefused（转为拒答）。RuleGenerator 与 RuleClassifier
// 是确定性的规则实现，TokenBudget 在生成前按 token 预算裁剪历史。
package llm
