package llm

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// 模型到 tiktoken 编码的映射
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

func encodingFor(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) {
			return enc
		}
	}
	return "cl100k_base"
}

// TokenBudget trims conversation history to a token budget before it is
// handed to the generator. It uses tiktoken when the encoding can be loaded
// and falls back to a character estimate otherwise.
type TokenBudget struct {
	max      int
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	counter func(string) int
}

func NewTokenBudget(model string, max int, logger *zap.Logger) *TokenBudget {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenBudget{
		max:      max,
		encoding: encodingFor(model),
		logger:   logger.With(zap.String("component", "token_budget")),
	}
}

// WithCounter overrides token counting.
func (b *TokenBudget) WithCounter(fn func(string) int) *TokenBudget {
	b.once.Do(func() {})
	b.counter = fn
	return b
}

// init lazily 初始化编码（首次使用时可能需要下载 BPE 数据）
func (b *TokenBudget) init() {
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding(b.encoding)
		if err != nil {
			b.logger.Warn("tiktoken unavailable, using estimator",
				zap.String("encoding", b.encoding),
				zap.Error(err))
			return
		}
		b.enc = enc
	})
}

// Count returns the token count of text.
func (b *TokenBudget) Count(text string) int {
	b.init()
	switch {
	case b.counter != nil:
		return b.counter(text)
	case b.enc != nil:
		return len(b.enc.Encode(text, nil, nil))
	default:
		return estimateTokens(text)
	}
}

// CountMessages counts tokens including per-message overhead.
func (b *TokenBudget) CountMessages(msgs []Message) int {
	total := 3
	for _, m := range msgs {
		total += 4 + b.Count(m.Content) + b.Count(string(m.Role))
	}
	return total
}

// Trim keeps the newest messages that fit the budget. The most recent
// message is always kept. A non-positive budget disables trimming.
func (b *TokenBudget) Trim(msgs []Message) []Message {
	if b.max <= 0 || len(msgs) == 0 {
		return msgs
	}
	used := 3
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := 4 + b.Count(msgs[i].Content) + b.Count(string(msgs[i].Role))
		if used+cost > b.max && start < len(msgs) {
			break
		}
		used += cost
		start = i
	}
	if start > 0 {
		b.logger.Debug("history trimmed",
			zap.Int("dropped", start),
			zap.Int("kept", len(msgs)-start),
			zap.Int("tokens", used))
	}
	return msgs[start:]
}

func (b *TokenBudget) String() string {
	return fmt.Sprintf("token_budget[%s,%d]", b.encoding, b.max)
}

// estimateTokens CJK 约 1.5 字符/token，其他约 4 字符/token
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 {
		n = 1
	}
	return n
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
