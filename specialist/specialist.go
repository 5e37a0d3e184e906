package specialist

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
)

// ErrUnknownSpecialist is returned by Set.Get for names outside the variant.
var ErrUnknownSpecialist = errors.New("unknown specialist")

// Kind is the closed set of specialists the router may select.
type Kind string

const (
	Payroll    Kind = "payroll"
	Employee   Kind = "employee"
	Compliance Kind = "compliance"
	General    Kind = "general"
)

// Kinds lists every specialist.
var Kinds = []Kind{Payroll, Employee, Compliance, General}

var systemPrompts = map[Kind]string{
	Payroll:    "You are the payroll specialist. Use the payroll tools for every figure; never estimate pay.",
	Employee:   "You are the employee specialist. Answer employee record and leave balance questions with the tools provided.",
	Compliance: "You are the compliance specialist. Ground answers in the policy handbook and department-level figures.",
	General:    "You are the general HR assistant. Answer briefly and point users to what the system can do.",
}

// ProposalKind 专家提议类型
type ProposalKind string

const (
	ProposeToolCall     ProposalKind = "tool_call"
	ProposeAnswer       ProposalKind = "answer"
	ProposeContextQuery ProposalKind = "context_query"
)

// Proposal is what a specialist wants the engine to do next.
type Proposal struct {
	Kind     ProposalKind         `json:"kind"`
	ToolCall *governance.ToolCall `json:"tool_call,omitempty"`
	Answer   string               `json:"answer,omitempty"`
	Query    string               `json:"query,omitempty"`
}

// View is the part of the graph state a specialist reasons over.
type View struct {
	History          []llm.Message
	Context          []llm.ContextSnippet
	ContextRetrieved bool
}

// Specialist is one member of the tagged variant. The caller role used for
// governance is the specialist's Kind.
type Specialist struct {
	kind      Kind
	system    string
	generator llm.Generator
	governor  *governance.Governor
	budget    *llm.TokenBudget
	newID     func() string
	logger    *zap.Logger
}

func (s *Specialist) Kind() Kind { return s.kind }

// Role is the governance role of this specialist.
func (s *Specialist) Role() string { return string(s.kind) }

// Tools returns the tool specs offered to the generator under the active policy.
func (s *Specialist) Tools() []llm.ToolSpec {
	descs := s.governor.Catalog(s.Role())
	out := make([]llm.ToolSpec, 0, len(descs))
	for _, d := range descs {
		out = append(out, llm.ToolSpec{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return out
}

// Reason asks the generator for the next action. Generator errors are
// returned unchanged so the engine can tell refusal from unavailability.
func (s *Specialist) Reason(ctx context.Context, v View) (Proposal, error) {
	history := v.History
	if s.budget != nil {
		history = s.budget.Trim(history)
	}
	gen, err := s.generator.Generate(ctx, llm.Prompt{
		Specialist:       string(s.kind),
		System:           s.system,
		Messages:         history,
		Tools:            s.Tools(),
		Context:          v.Context,
		ContextRetrieved: v.ContextRetrieved,
	})
	if err != nil {
		return Proposal{}, err
	}
	if gen == nil {
		return Proposal{}, fmt.Errorf("%w: empty generation", llm.ErrModelUnavailable)
	}

	switch gen.Kind {
	case llm.GenerationToolCall:
		if gen.ToolCall == nil || gen.ToolCall.Name == "" {
			return Proposal{}, fmt.Errorf("%w: tool call without a tool name", llm.ErrModelUnavailable)
		}
		call := &governance.ToolCall{
			ID:        s.newID(),
			Name:      gen.ToolCall.Name,
			Arguments: gen.ToolCall.Arguments,
		}
		s.logger.Debug("tool proposed", zap.String("tool", call.Name))
		return Proposal{Kind: ProposeToolCall, ToolCall: call}, nil
	case llm.GenerationContextQuery:
		return Proposal{Kind: ProposeContextQuery, Query: gen.Query}, nil
	default:
		return Proposal{Kind: ProposeAnswer, Answer: gen.Content}, nil
	}
}

// Set holds one specialist per Kind.
type Set struct {
	members map[Kind]*Specialist
}

// Options 专家集合的依赖
type Options struct {
	Generator llm.Generator
	Governor  *governance.Governor
	Budget    *llm.TokenBudget
	Logger    *zap.Logger
}

func NewSet(opts Options) *Set {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	set := &Set{members: make(map[Kind]*Specialist, len(Kinds))}
	for _, k := range Kinds {
		set.members[k] = &Specialist{
			kind:      k,
			system:    systemPrompts[k],
			generator: opts.Generator,
			governor:  opts.Governor,
			budget:    opts.Budget,
			newID:     func() string { return "call_" + uuid.NewString() },
			logger:    logger.With(zap.String("specialist", string(k))),
		}
	}
	return set
}

// Get selects the specialist for a router label.
func (s *Set) Get(name string) (*Specialist, error) {
	sp, ok := s.members[Kind(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpecialist, name)
	}
	return sp, nil
}

// Names returns the specialist names in sorted order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.members))
	for k := range s.members {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
