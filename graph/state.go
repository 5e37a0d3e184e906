package graph

import (
	"encoding/json"
	"fmt"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
)

// Node 执行图节点
type Node string

const (
	NodeStart             Node = "START"
	NodeClassify          Node = "CLASSIFY"
	NodeRoute             Node = "ROUTE"
	NodeSpecialistReason  Node = "SPECIALIST_REASON"
	NodeToolGovern        Node = "TOOL_GOVERN"
	NodeToolExecute       Node = "TOOL_EXECUTE"
	NodeSuspendedApproval Node = "SUSPENDED_APPROVAL"
	NodeAnswer            Node = "ANSWER"
	NodeTerminal          Node = "TERMINAL"
)

// validTransitions 正常路径上的合法转换。
// 另外任何非终止节点都可以转到 TERMINAL（取消），
// 执行中的节点可以在失败时直接转到 ANSWER，见 CanTransition。
var validTransitions = map[Node][]Node{
	NodeStart:             {NodeClassify},
	NodeClassify:          {NodeRoute},
	NodeRoute:             {NodeSpecialistReason},
	NodeSpecialistReason:  {NodeToolGovern, NodeAnswer, NodeSpecialistReason},
	NodeToolGovern:        {NodeToolExecute, NodeSuspendedApproval, NodeAnswer},
	NodeToolExecute:       {NodeSpecialistReason, NodeAnswer},
	NodeSuspendedApproval: {NodeToolExecute, NodeAnswer},
	NodeAnswer:            {NodeTerminal},
}

// failureEdges 可以因失败直接进入 ANSWER 的节点
var failureEdges = map[Node]bool{
	NodeStart:            true,
	NodeClassify:         true,
	NodeRoute:            true,
	NodeSpecialistReason: true,
	NodeToolGovern:       true,
	NodeToolExecute:      true,
}

// Terminal reports whether n ends the run.
func (n Node) Terminal() bool { return n == NodeTerminal }

// Valid reports whether n is a known node.
func (n Node) Valid() bool {
	_, ok := validTransitions[n]
	return ok || n == NodeTerminal
}

// CanTransition 检查节点转换是否合法
func CanTransition(from, to Node) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	if to == NodeTerminal {
		return true
	}
	if to == NodeAnswer && failureEdges[from] {
		return true
	}
	for _, n := range validTransitions[from] {
		if n == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法节点转换错误
type ErrInvalidTransition struct {
	From Node
	To   Node
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid graph transition: %s -> %s", e.From, e.To)
}

// FailureKind tags an answer produced by a failure. Empty for a normal answer.
type FailureKind string

const (
	FailureNone                   FailureKind = ""
	FailureInputRejected          FailureKind = "InputRejected"
	FailureClassification         FailureKind = "ClassificationFailure"
	FailureModelUnavailable       FailureKind = "ModelUnavailable"
	FailureModelRefused           FailureKind = "ModelRefused"
	FailureToolDenied             FailureKind = "ToolDenied"
	FailureToolFailure            FailureKind = "ToolFailure"
	FailureTimeout                FailureKind = "Timeout"
	FailureIterationLimitExceeded FailureKind = "IterationLimitExceeded"
	FailureCancelled              FailureKind = "Cancelled"
)

// Classification is the router outcome recorded in the state.
type Classification struct {
	Specialist string  `json:"specialist"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"fallback"`
}

// Answer is the terminal response of a run.
type Answer struct {
	Content     string         `json:"content"`
	FailureKind FailureKind    `json:"failure_kind,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Failed reports whether the answer was produced by a failure.
func (a *Answer) Failed() bool { return a != nil && a.FailureKind != FailureNone }

// GraphState is passed explicitly between nodes and persisted with every
// checkpoint. History is append-only.
type GraphState struct {
	History           []llm.Message        `json:"history"`
	Specialist        string               `json:"specialist,omitempty"`
	Classification    *Classification      `json:"classification,omitempty"`
	PendingToolCall   *governance.ToolCall `json:"pending_tool_call,omitempty"`
	PendingApprovalID string               `json:"pending_approval_id,omitempty"`
	Answer            *Answer              `json:"answer,omitempty"`
	Iterations        int                  `json:"iterations"`
	Caller            governance.Caller    `json:"caller"`

	// 检索到的参考资料，只在当前轮次有效
	Context          []llm.ContextSnippet `json:"context,omitempty"`
	ContextRetrieved bool                 `json:"context_retrieved,omitempty"`

	// InputRejection 非空表示输入护栏拒绝了本轮输入
	InputRejection string `json:"input_rejection,omitempty"`
	// Turn 会话内第几轮 Start，从 1 开始
	Turn int `json:"turn"`
}

// checkInvariant verifies that at most one of the pending tool call, the
// pending approval and the answer is set, and that the one required by the
// node is present.
func (s *GraphState) checkInvariant(n Node) error {
	set := 0
	if s.PendingToolCall != nil {
		set++
	}
	if s.PendingApprovalID != "" {
		set++
	}
	if s.Answer != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("graph state at %s: more than one of tool call, approval, answer is set", n)
	}

	switch n {
	case NodeToolGovern, NodeToolExecute:
		if s.PendingToolCall == nil {
			return fmt.Errorf("graph state at %s: pending tool call is required", n)
		}
	case NodeSuspendedApproval:
		if s.PendingApprovalID == "" {
			return fmt.Errorf("graph state at %s: pending approval id is required", n)
		}
	case NodeAnswer, NodeTerminal:
		if s.Answer == nil {
			return fmt.Errorf("graph state at %s: answer is required", n)
		}
	default:
		if set != 0 {
			return fmt.Errorf("graph state at %s: no pending work may be set", n)
		}
	}
	return nil
}

// clone returns a deep copy through the wire encoding, which is also what a
// checkpoint round trip would produce.
func (s *GraphState) clone() (*GraphState, error) {
	raw, err := encodeState(s)
	if err != nil {
		return nil, err
	}
	return decodeState(raw)
}

func (s *GraphState) appendMessage(m llm.Message) {
	s.History = append(s.History, m)
}

// clearPending 清空待处理工作，在进入下一轮或终止时调用
func (s *GraphState) clearPending() {
	s.PendingToolCall = nil
	s.PendingApprovalID = ""
	s.Answer = nil
}

func encodeState(s *GraphState) (json.RawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode graph state: %w", err)
	}
	return raw, nil
}

func decodeState(raw json.RawMessage) (*GraphState, error) {
	var s GraphState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode graph state: %w", err)
	}
	return &s, nil
}
