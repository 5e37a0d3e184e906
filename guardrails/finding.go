package guardrails

import (
	"context"
	"slices"
	"strings"
)

// 拒绝或改写的原因码
const (
	CodeEmpty     = "EMPTY_INPUT"
	CodeTooLong   = "MAX_LENGTH_EXCEEDED"
	CodeInjection = "INJECTION_DETECTED"
	CodePII       = "PII_DETECTED"
	CodeLeak      = "INTERNAL_LEAK"
)

// Finding 一次命中。Block 为 true 时内容不能原样通过。
type Finding struct {
	Check  string `json:"check"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
	Block  bool   `json:"block"`
}

// Check 检查一段文本并报告命中
type Check interface {
	Name() string
	Inspect(ctx context.Context, text string) []Finding
}

// Verdict 一条流水线的汇总结果
type Verdict struct {
	Findings []Finding
	// 实际执行过的检查
	Ran []string
}

// Blocked 是否存在阻断性命中
func (v Verdict) Blocked() bool {
	return slices.ContainsFunc(v.Findings, func(f Finding) bool { return f.Block })
}

// Has 是否包含指定原因码
func (v Verdict) Has(code string) bool {
	return slices.ContainsFunc(v.Findings, func(f Finding) bool { return f.Code == code })
}

// Codes 按出现顺序去重后的原因码
func (v Verdict) Codes() []string {
	var codes []string
	for _, f := range v.Findings {
		if !slices.Contains(codes, f.Code) {
			codes = append(codes, f.Code)
		}
	}
	return codes
}

// Reason 阻断性命中的说明，用分号连接
func (v Verdict) Reason() string {
	var parts []string
	for _, f := range v.Findings {
		if f.Block {
			parts = append(parts, f.Detail)
		}
	}
	return strings.Join(parts, "; ")
}

// Pipeline 按给定顺序执行检查。stopOnBlock 为 true 时第一次阻断后不再继续。
type Pipeline struct {
	checks      []Check
	stopOnBlock bool
}

func NewPipeline(stopOnBlock bool, checks ...Check) *Pipeline {
	return &Pipeline{checks: slices.Clone(checks), stopOnBlock: stopOnBlock}
}

func (p *Pipeline) Run(ctx context.Context, text string) (Verdict, error) {
	var v Verdict
	for _, c := range p.checks {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		found := c.Inspect(ctx, text)
		v.Ran = append(v.Ran, c.Name())
		v.Findings = append(v.Findings, found...)
		if p.stopOnBlock && (Verdict{Findings: found}).Blocked() {
			break
		}
	}
	return v, nil
}
