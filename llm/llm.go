package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

var (
	// ErrModelUnavailable is a transient collaborator failure; callers may retry.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelRefused means the model declined to answer; not retryable.
	ErrModelRefused = errors.New("model refused")
)

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation entry.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolSpec describes a tool offered to the generator.
type ToolSpec struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Schema      *types.Schema `json:"schema,omitempty"`
}

// ContextSnippet is retrieved reference text offered to the generator.
type ContextSnippet struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Prompt is the full input of one generation call.
type Prompt struct {
	Specialist       string           `json:"specialist"`
	System           string           `json:"system"`
	Messages         []Message        `json:"messages"`
	Tools            []ToolSpec       `json:"tools,omitempty"`
	Context          []ContextSnippet `json:"context,omitempty"`
	ContextRetrieved bool             `json:"context_retrieved"`
}

// LastUser returns the most recent user message content.
func (p Prompt) LastUser() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == RoleUser {
			return p.Messages[i].Content
		}
	}
	return ""
}

// HasTool reports whether name is among the offered tools.
func (p Prompt) HasTool(name string) bool {
	for _, t := range p.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// GenerationKind 生成结果类型
type GenerationKind string

const (
	GenerationContent      GenerationKind = "content"
	GenerationToolCall     GenerationKind = "tool_call"
	GenerationContextQuery GenerationKind = "context_query"
)

// ToolCallRequest is a model-proposed tool invocation.
type ToolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Generation is exactly one of content, tool call or context query.
type Generation struct {
	Kind     GenerationKind   `json:"kind"`
	Content  string           `json:"content,omitempty"`
	ToolCall *ToolCallRequest `json:"tool_call,omitempty"`
	Query    string           `json:"query,omitempty"`
}

// Generator 文本生成接口
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (*Generation, error)
}

// GeneratorFunc 函数适配器
type GeneratorFunc func(ctx context.Context, prompt Prompt) (*Generation, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt) (*Generation, error) {
	return f(ctx, prompt)
}

// Classification is the raw classifier output before thresholding.
type Classification struct {
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

// Classifier 意图分类接口
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

// ClassifierFunc 函数适配器
type ClassifierFunc func(ctx context.Context, text string) (*Classification, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (*Classification, error) {
	return f(ctx, text)
}
