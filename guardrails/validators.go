package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// LengthCheck 拒绝空白输入与超过 max 个字符的输入；max <= 0 不限长度
type LengthCheck struct{ max int }

func NewLengthCheck(max int) LengthCheck { return LengthCheck{max: max} }

func (LengthCheck) Name() string { return "length" }

func (c LengthCheck) Inspect(_ context.Context, text string) []Finding {
	if strings.TrimSpace(text) == "" {
		return []Finding{{Check: "length", Code: CodeEmpty, Detail: "input is empty", Block: true}}
	}
	if n := utf8.RuneCountInString(text); c.max > 0 && n > c.max {
		return []Finding{{
			Check:  "length",
			Code:   CodeTooLong,
			Detail: fmt.Sprintf("input has %d characters, the limit is %d", n, c.max),
			Block:  true,
		}}
	}
	return nil
}

// LeakCheck 发现回答中的数据库错误、堆栈或源码路径
type LeakCheck struct{}

var leakSignatures = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"sql_error", regexp.MustCompile(`(?i)(?:SQLSTATE|pq: |DETAIL:|HINT:|syntax error at or near)`)},
	{"stack_trace", regexp.MustCompile(`goroutine \d+ \[running\]`)},
	{"source_path", regexp.MustCompile(`(?:/home/|/usr/|/var/|/root/)\S+\.go(?::\d+)?`)},
}

func (LeakCheck) Name() string { return "leak" }

func (LeakCheck) Inspect(_ context.Context, text string) []Finding {
	var out []Finding
	for _, sig := range leakSignatures {
		if sig.re.MatchString(text) {
			out = append(out, Finding{Check: "leak", Code: CodeLeak, Detail: "response exposes " + sig.kind, Block: true})
		}
	}
	return out
}
