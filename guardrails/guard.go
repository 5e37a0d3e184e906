package guardrails

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

const (
	truncatedSuffix = "... [TRUNCATED]"
	// 输出中发现内部细节时返回给用户的文本
	GenericFailureMessage = "I encountered an issue generating your response. Please try again or contact HR support."
)

// InputCheck 输入护栏结果
type InputCheck struct {
	// Text 脱敏后的输入，Rejected 为 true 时不应进入历史
	Text     string
	Rejected bool
	Reason   string
	Verdict  Verdict
}

// OutputCheck 输出护栏结果
type OutputCheck struct {
	Text      string
	Modified  bool
	Truncated bool
	Verdict   Verdict
}

// Guard 组合输入与输出护栏
type Guard struct {
	input     *Pipeline
	output    *Pipeline
	pii       PIIScanner
	redact    bool
	maxOutput int
	logger    *zap.Logger
}

// New 根据配置创建护栏
func New(cfg config.GuardrailsConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	inputs := []Check{NewLengthCheck(cfg.MaxInputLength)}
	if cfg.BlockInjection {
		inputs = append(inputs, NewInjectionCheck())
	}
	outputs := []Check{LeakCheck{}}
	if cfg.RedactPII {
		inputs = append(inputs, PIIScanner{})
		outputs = append(outputs, PIIScanner{})
	}
	return &Guard{
		input:     NewPipeline(true, inputs...),
		output:    NewPipeline(false, outputs...),
		redact:    cfg.RedactPII,
		maxOutput: cfg.MaxOutputLength,
		logger:    logger.With(zap.String("component", "guardrails")),
	}
}

// CheckInput 空输入、超长或疑似注入时拒绝；开启脱敏时 PII 替换为占位符
func (g *Guard) CheckInput(ctx context.Context, text string) (*InputCheck, error) {
	v, err := g.input.Run(ctx, text)
	if err != nil {
		return nil, err
	}
	check := &InputCheck{Text: text, Verdict: v}
	if v.Blocked() {
		check.Rejected = true
		check.Reason = v.Reason()
		g.logger.Warn("input rejected", zap.Strings("codes", v.Codes()), zap.String("reason", check.Reason))
		return check, nil
	}
	if g.redact && v.Has(CodePII) {
		check.Text = g.pii.Mask(text)
		g.logger.Info("pii redacted from input", zap.Int("spans", len(g.pii.Scan(text))))
	}
	return check, nil
}

// CheckOutput 超长截断、PII 脱敏；暴露内部细节时整段替换为通用提示
func (g *Guard) CheckOutput(ctx context.Context, text string) (*OutputCheck, error) {
	check := &OutputCheck{Text: text}
	if g.maxOutput > 0 && utf8.RuneCountInString(text) > g.maxOutput {
		check.Text = string([]rune(text)[:g.maxOutput]) + truncatedSuffix
		check.Truncated = true
	}

	v, err := g.output.Run(ctx, check.Text)
	if err != nil {
		return nil, err
	}
	check.Verdict = v

	switch {
	case v.Has(CodeLeak):
		g.logger.Error("internal details in response suppressed", zap.String("reason", v.Reason()))
		check.Text = GenericFailureMessage
	case g.redact && v.Has(CodePII):
		check.Text = g.pii.Mask(check.Text)
	}
	check.Modified = check.Text != text
	return check, nil
}

// RedactPII 对任意文本做 PII 脱敏，未开启时原样返回
func (g *Guard) RedactPII(text string) string {
	if !g.redact {
		return text
	}
	return g.pii.Mask(text)
}

// IsRedacted 判断文本中是否含有脱敏占位符
func IsRedacted(text string) bool {
	return strings.Contains(text, "_REDACTED]")
}
