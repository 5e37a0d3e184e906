package guardrails

import (
	"context"
	"regexp"
	"sort"
)

// PIIKind PII 类别
type PIIKind string

const (
	PIISSN   PIIKind = "ssn"
	PIICard  PIIKind = "credit_card"
	PIIEmail PIIKind = "email"
	PIIPhone PIIKind = "phone"
)

// Span 一处 PII 在文本中的字节区间
type Span struct {
	Kind  PIIKind `json:"kind"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

type piiRule struct {
	kind PIIKind
	re   *regexp.Regexp
	mask string
}

// 按顺序替换，格式更具体的在前；9 位裸数字按 SSN 处理
var piiRules = []piiRule{
	{PIISSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{PIICard, regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "[CARD_REDACTED]"},
	{PIIEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{PIIPhone, regexp.MustCompile(`(?:\(\d{3}\)\s?|\b\d{3}[-.])\d{3}[-.]?\d{4}\b`), "[PHONE_REDACTED]"},
	{PIISSN, regexp.MustCompile(`\b\d{9}\b`), "[SSN_REDACTED]"},
}

// PIIScanner 识别并替换美国常见 PII 格式。
// 作为 Check 时只报告，不阻断。
type PIIScanner struct{}

func (PIIScanner) Name() string { return "pii" }

// Scan 返回按起始位置排序的全部区间
func (PIIScanner) Scan(text string) []Span {
	var spans []Span
	for _, r := range piiRules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			spans = append(spans, Span{Kind: r.kind, Start: loc[0], End: loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// Mask 用占位符替换所有 PII
func (PIIScanner) Mask(text string) string {
	for _, r := range piiRules {
		text = r.re.ReplaceAllString(text, r.mask)
	}
	return text
}

func (PIIScanner) Inspect(_ context.Context, text string) []Finding {
	var out []Finding
	seen := map[PIIKind]bool{}
	for _, r := range piiRules {
		if seen[r.kind] || !r.re.MatchString(text) {
			continue
		}
		seen[r.kind] = true
		out = append(out, Finding{Check: "pii", Code: CodePII, Detail: string(r.kind) + " redacted"})
	}
	return out
}
