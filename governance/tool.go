package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// Risk is the static impact class of a tool.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Valid reports whether r is one of the known risk classes.
func (r Risk) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ToolFunc executes a tool. Arguments have already passed schema validation.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// QuantityFunc measures the monetary or headcount quantity a call would touch.
// It must be read-only.
type QuantityFunc func(ctx context.Context, args json.RawMessage) (float64, error)

// ToolDescriptor is the registration record of a tool. Immutable once registered.
type ToolDescriptor struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Schema        *types.Schema `json:"input_schema"`
	Risk          Risk              `json:"risk"`
	SideEffecting bool              `json:"side_effecting"`
	Timeout       time.Duration     `json:"timeout,omitempty"`

	// QuantityArg names a numeric argument compared against the tool's threshold.
	QuantityArg string `json:"quantity_arg,omitempty"`
	// Quantity overrides QuantityArg when the quantity is derived rather than passed.
	Quantity QuantityFunc `json:"-"`
}

func (d ToolDescriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if !d.Risk.Valid() {
		return fmt.Errorf("tool %s: invalid risk class %q", d.Name, d.Risk)
	}
	if d.Schema == nil {
		return fmt.Errorf("tool %s: input schema is required", d.Name)
	}
	return nil
}

// ToolCall is a proposed invocation of a registered tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Risk      Risk            `json:"risk,omitempty"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	TimedOut   bool            `json:"timed_out,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Failed reports whether the execution produced an error.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}
