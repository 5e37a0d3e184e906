package governance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGovernor_Evaluate(t *testing.T) {
	totals := map[string]float64{"Engineering": 61500, "HR": 12000}
	g := NewGovernor(newTestRegistry(totals), testPolicy(), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		role    string
		tool    string
		args    string
		verdict Verdict
		reason  string
	}{
		{"low risk allowed", "payroll", "get_employee_info", `{"employee_id":"E007"}`, VerdictAllow, "allowed"},
		{"not on allowlist", "general", "calculate_department_payroll", `{"department":"HR"}`, VerdictDeny, "not permitted"},
		{"unknown role fails closed", "intern", "get_employee_info", `{"employee_id":"E007"}`, VerdictDeny, "not permitted"},
		{"schema pattern violation", "payroll", "get_employee_info", `{"employee_id":"7"}`, VerdictDeny, "employee_id must match"},
		{"missing required field", "payroll", "get_employee_info", `{}`, VerdictDeny, "employee_id is required"},
		{"unexpected field", "payroll", "get_employee_info", `{"employee_id":"E007","ssn":"x"}`, VerdictDeny, "ssn is not an accepted argument"},
		{"malformed json", "payroll", "get_employee_info", `{"employee_id":`, VerdictDeny, "not valid JSON"},
		{"high risk needs approval", "payroll", "terminate_employee", `{"employee_id":"E007"}`, VerdictRequireApproval, "high risk"},
		{"medium under threshold", "compliance", "calculate_department_payroll", `{"department":"HR"}`, VerdictAllow, "allowed"},
		{"medium over threshold", "compliance", "calculate_department_payroll", `{"department":"Engineering"}`, VerdictRequireApproval, "exceeds threshold"},
		{"probe failure escalates", "compliance", "calculate_department_payroll", `{"department":"Atlantis"}`, VerdictRequireApproval, "unavailable"},
		{"argument quantity over threshold", "payroll", "calculate_deductions", `{"employee_id":"E001","gross_pay":25000}`, VerdictRequireApproval, "exceeds threshold"},
		{"argument quantity under threshold", "payroll", "calculate_deductions", `{"employee_id":"E001","gross_pay":8000}`, VerdictAllow, "allowed"},
		{"parameter bound", "payroll", "calculate_deductions", `{"employee_id":"E001","gross_pay":-1}`, VerdictDeny, "gross_pay must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Evaluate(ctx, Caller{Principal: "u1", Role: tt.role}, tt.tool, json.RawMessage(tt.args))
			assert.Equal(t, tt.verdict, d.Verdict)
			assert.Contains(t, d.Reason, tt.reason)
			assert.Equal(t, tt.tool, d.Tool)
		})
	}
}

func TestGovernor_ReportsQuantityAndThreshold(t *testing.T) {
	g := NewGovernor(newTestRegistry(map[string]float64{"Engineering": 61500}), testPolicy(), nil)

	d := g.Evaluate(context.Background(), Caller{Role: "compliance"}, "calculate_department_payroll",
		json.RawMessage(`{"department":"Engineering"}`))

	require.Equal(t, VerdictRequireApproval, d.Verdict)
	require.NotNil(t, d.Quantity)
	require.NotNil(t, d.Threshold)
	assert.Equal(t, 61500.0, *d.Quantity)
	assert.Equal(t, 50000.0, *d.Threshold)
	assert.Equal(t, RiskMedium, d.Risk)
}

func TestGovernor_QuantityFromNumericArgument(t *testing.T) {
	g := NewGovernor(newTestRegistry(nil), testPolicy(), nil)
	ctx := context.Background()

	over := g.Evaluate(ctx, Caller{Role: "payroll"}, "calculate_deductions",
		json.RawMessage(`{"employee_id":"E001","gross_pay":20000.5}`))
	require.Equal(t, VerdictRequireApproval, over.Verdict)
	require.NotNil(t, over.Quantity)
	assert.Equal(t, 20000.5, *over.Quantity)

	at := g.Evaluate(ctx, Caller{Role: "payroll"}, "calculate_deductions",
		json.RawMessage(`{"employee_id":"E001","gross_pay":20000}`))
	assert.Equal(t, VerdictAllow, at.Verdict)
	require.NotNil(t, at.Quantity)
	assert.Equal(t, 20000.0, *at.Quantity)
}

func TestGovernor_MediumWithoutThresholdIsAllowed(t *testing.T) {
	policy := NewPolicy(map[string][]string{"compliance": {"calculate_department_payroll"}}, nil)
	g := NewGovernor(newTestRegistry(map[string]float64{"Engineering": 1e9}), policy, nil)

	d := g.Evaluate(context.Background(), Caller{Role: "compliance"}, "calculate_department_payroll",
		json.RawMessage(`{"department":"Engineering"}`))
	assert.Equal(t, VerdictAllow, d.Verdict)
}

func TestGovernor_SchemaViolationsListed(t *testing.T) {
	g := NewGovernor(newTestRegistry(nil), testPolicy(), nil)

	d := g.Evaluate(context.Background(), Caller{Role: "payroll"}, "calculate_deductions",
		json.RawMessage(`{"gross_pay":"lots","zzz":1}`))

	require.Equal(t, VerdictDeny, d.Verdict)
	paths := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		paths = append(paths, v.Path)
	}
	assert.Equal(t, []string{"employee_id", "gross_pay", "zzz"}, paths)
}

func TestGovernor_UnregisteredToolDenied(t *testing.T) {
	policy := NewPolicy(map[string][]string{"payroll": {"approve_bonus"}}, nil)
	g := NewGovernor(NewRegistry(nil), policy, nil)

	d := g.Evaluate(context.Background(), Caller{Role: "payroll"}, "approve_bonus", nil)
	assert.Equal(t, VerdictDeny, d.Verdict)
	assert.Contains(t, d.Reason, "not registered")
}

func TestGovernor_UpdatePolicy(t *testing.T) {
	g := NewGovernor(newTestRegistry(map[string]float64{"HR": 12000}), testPolicy(), nil)
	args := json.RawMessage(`{"department":"HR"}`)
	caller := Caller{Role: "compliance"}

	require.Equal(t, VerdictAllow, g.Evaluate(context.Background(), caller, "calculate_department_payroll", args).Verdict)

	g.UpdatePolicy(NewPolicy(
		map[string][]string{"compliance": {"calculate_department_payroll"}},
		map[string]float64{"calculate_department_payroll": 10000},
	))
	assert.Equal(t, VerdictRequireApproval, g.Evaluate(context.Background(), caller, "calculate_department_payroll", args).Verdict)

	g.UpdatePolicy(nil)
	assert.NotNil(t, g.Policy())
}

func TestPolicy_ToolsFor(t *testing.T) {
	p := testPolicy()
	assert.Equal(t, []string{"calculate_department_payroll", "get_employee_info"}, p.ToolsFor("compliance"))
	assert.Empty(t, p.ToolsFor("nobody"))
}

// Same (role, tool, arguments) always yields the same decision.
func TestGovernor_DeterminismProperty(t *testing.T) {
	totals := map[string]float64{"Engineering": 61500, "HR": 12000, "Sales": 50000}
	g := NewGovernor(newTestRegistry(totals), testPolicy(), nil)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom([]string{"payroll", "compliance", "general", "intern"}).Draw(t, "role")
		tool := rapid.SampledFrom([]string{
			"get_employee_info", "terminate_employee", "calculate_department_payroll", "calculate_deductions", "missing_tool",
		}).Draw(t, "tool")
		args := map[string]any{}
		if rapid.Bool().Draw(t, "with_employee") {
			args["employee_id"] = rapid.StringMatching(`E[0-9]{1,4}`).Draw(t, "employee_id")
		}
		if rapid.Bool().Draw(t, "with_department") {
			args["department"] = rapid.SampledFrom([]string{"Engineering", "HR", "Sales", "", "Atlantis"}).Draw(t, "department")
		}
		if rapid.Bool().Draw(t, "with_gross") {
			args["gross_pay"] = rapid.Float64Range(-100, 2_000_000).Draw(t, "gross_pay")
		}
		raw, err := json.Marshal(args)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		caller := Caller{Principal: "p", Role: role}
		first := g.Evaluate(ctx, caller, tool, raw)
		for i := 0; i < 3; i++ {
			again := g.Evaluate(ctx, caller, tool, raw)
			if again.Verdict != first.Verdict || again.Reason != first.Reason {
				t.Fatalf("decision changed: %+v vs %+v", first, again)
			}
		}
	})
}

func TestGovernor_Catalog(t *testing.T) {
	g := NewGovernor(newTestRegistry(nil), testPolicy(), nil)
	names := func(ds []ToolDescriptor) []string {
		out := make([]string, 0, len(ds))
		for _, d := range ds {
			out = append(out, d.Name)
		}
		return out
	}
	assert.Equal(t, []string{"calculate_department_payroll", "get_employee_info"}, names(g.Catalog("compliance")))
	assert.Empty(t, g.Catalog("nobody"))
}
