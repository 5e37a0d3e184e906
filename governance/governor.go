package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// Verdict is the outcome of a governance check.
type Verdict string

const (
	VerdictAllow           Verdict = "allow"
	VerdictDeny            Verdict = "deny"
	VerdictRequireApproval Verdict = "require_approval"
)

// Caller identifies who proposes a tool call. Role selects the allowlist.
type Caller struct {
	Principal string `json:"principal"`
	Role      string `json:"role"`
}

// Decision explains a verdict.
type Decision struct {
	Verdict   Verdict  `json:"verdict"`
	Tool      string   `json:"tool"`
	Role      string   `json:"role"`
	Risk      Risk     `json:"risk,omitempty"`
	Quantity  *float64 `json:"quantity,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Reason    string   `json:"reason"`
	// Violations lists schema failures when the verdict is deny.
	Violations []FieldError `json:"violations,omitempty"`
}

// Policy binds roles to tools and tools to approval thresholds.
type Policy struct {
	allow      map[string]map[string]struct{}
	thresholds map[string]float64
}

// NewPolicy builds a policy from role → tools and tool → threshold maps.
func NewPolicy(allowlists map[string][]string, thresholds map[string]float64) *Policy {
	p := &Policy{
		allow:      make(map[string]map[string]struct{}, len(allowlists)),
		thresholds: make(map[string]float64, len(thresholds)),
	}
	for role, tools := range allowlists {
		set := make(map[string]struct{}, len(tools))
		for _, t := range tools {
			set[t] = struct{}{}
		}
		p.allow[role] = set
	}
	for tool, limit := range thresholds {
		p.thresholds[tool] = limit
	}
	return p
}

// Allowed reports whether role may call tool. Unknown roles are denied.
func (p *Policy) Allowed(role, tool string) bool {
	set, ok := p.allow[role]
	if !ok {
		return false
	}
	_, ok = set[tool]
	return ok
}

// ToolsFor returns the sorted allowlist of role.
func (p *Policy) ToolsFor(role string) []string {
	set := p.allow[role]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Threshold returns the approval threshold configured for tool.
func (p *Policy) Threshold(tool string) (float64, bool) {
	v, ok := p.thresholds[tool]
	return v, ok
}

// Governor decides whether a proposed call may run. It keeps no per-call state;
// the only mutable field is the policy pointer, swapped whole on reload.
type Governor struct {
	registry *Registry
	policy   atomic.Pointer[Policy]
	logger   *zap.Logger
}

// NewGovernor 创建工具治理器。
func NewGovernor(registry *Registry, policy *Policy, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = NewPolicy(nil, nil)
	}
	g := &Governor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_governor")),
	}
	g.policy.Store(policy)
	return g
}

// Policy returns the active policy.
func (g *Governor) Policy() *Policy {
	return g.policy.Load()
}

// UpdatePolicy replaces the active policy.
func (g *Governor) UpdatePolicy(p *Policy) {
	if p == nil {
		return
	}
	g.policy.Store(p)
	g.logger.Info("governance policy updated")
}

// Catalog returns the registered tools the role may call under the active policy.
func (g *Governor) Catalog(role string) []ToolDescriptor {
	return g.registry.Select(g.policy.Load().ToolsFor(role))
}

// Evaluate applies, in order: allowlist, registration, schema, risk and threshold.
func (g *Governor) Evaluate(ctx context.Context, caller Caller, tool string, args json.RawMessage) Decision {
	policy := g.policy.Load()
	d := Decision{Tool: tool, Role: caller.Role}

	if !policy.Allowed(caller.Role, tool) {
		d.Verdict = VerdictDeny
		d.Reason = fmt.Sprintf("tool %q is not permitted for role %q", tool, caller.Role)
		return g.logged(d)
	}

	desc, err := g.registry.Descriptor(tool)
	if err != nil {
		d.Verdict = VerdictDeny
		d.Reason = fmt.Sprintf("tool %q is not registered", tool)
		return g.logged(d)
	}
	d.Risk = desc.Risk

	if err := ValidateArguments(args, desc.Schema); err != nil {
		d.Verdict = VerdictDeny
		d.Reason = fmt.Sprintf("invalid arguments for %s: %v", tool, err)
		var se *SchemaError
		if errors.As(err, &se) {
			d.Violations = se.Errors
		}
		return g.logged(d)
	}

	switch desc.Risk {
	case RiskHigh:
		d.Verdict = VerdictRequireApproval
		d.Reason = fmt.Sprintf("tool %q is high risk", tool)
		return g.logged(d)

	case RiskMedium:
		limit, ok := policy.Threshold(tool)
		if !ok {
			break
		}
		d.Threshold = &limit
		qty, err := measure(ctx, desc, args)
		if err != nil {
			// 无法证明低于阈值时交给人工审批
			d.Verdict = VerdictRequireApproval
			d.Reason = fmt.Sprintf("quantity for %s unavailable: %v", tool, err)
			return g.logged(d)
		}
		d.Quantity = &qty
		if qty > limit {
			d.Verdict = VerdictRequireApproval
			d.Reason = fmt.Sprintf("%s quantity %.2f exceeds threshold %.2f", tool, qty, limit)
			return g.logged(d)
		}
	}

	d.Verdict = VerdictAllow
	d.Reason = "allowed"
	return g.logged(d)
}

func (g *Governor) logged(d Decision) Decision {
	g.logger.Debug("governance decision",
		zap.String("tool", d.Tool),
		zap.String("role", d.Role),
		zap.String("verdict", string(d.Verdict)),
		zap.String("reason", d.Reason))
	return d
}

func measure(ctx context.Context, desc ToolDescriptor, args json.RawMessage) (float64, error) {
	if desc.Quantity != nil {
		return desc.Quantity(ctx, args)
	}
	if desc.QuantityArg == "" {
		return 0, fmt.Errorf("no quantity probe declared")
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return 0, err
	}
	n, ok := asFloat(m[desc.QuantityArg])
	if !ok {
		return 0, fmt.Errorf("argument %q missing or not numeric", desc.QuantityArg)
	}
	return n, nil
}
