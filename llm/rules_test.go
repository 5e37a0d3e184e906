package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allTools = []ToolSpec{
	{Name: "get_employee_info"},
	{Name: "calculate_gross_pay"},
	{Name: "calculate_deductions"},
	{Name: "calculate_net_pay"},
	{Name: "get_leave_balance"},
	{Name: "search_employees_by_department"},
	{Name: "calculate_department_payroll"},
}

func TestRuleClassifier(t *testing.T) {
	c := NewRuleClassifier()
	tests := []struct {
		input string
		label string
	}{
		{"What is the gross pay for employee E007?", "payroll"},
		{"How many PTO days does E003 have left?", "employee"},
		{"What is the maximum overtime allowed by labor law and regulation?", "compliance"},
		{"Hello, what can you do?", "general"},
		{"zzz", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.label, got.Label)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestRuleClassifier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRuleClassifier().Classify(ctx, "pay")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestRuleGenerator_ProposesTools(t *testing.T) {
	g := NewRuleGenerator([]string{"Engineering", "Sales", "Finance", "HR"})
	tests := []struct {
		input string
		tool  string
		args  string
	}{
		{"What is the gross pay for employee E007?", "calculate_gross_pay", `{"employee_id":"E007","period":"monthly"}`},
		{"annual salary of EMP002", "calculate_gross_pay", `{"employee_id":"E002","period":"annual"}`},
		{"net pay for E001", "calculate_net_pay", `{"employee_id":"E001"}`},
		{"deductions for E004 on $8,250.50", "calculate_deductions", `{"employee_id":"E004","gross_pay":8250.5}`},
		{"how much leave does E010 have", "get_leave_balance", `{"employee_id":"E010"}`},
		{"tell me about E005", "get_employee_info", `{"employee_id":"E005"}`},
		{"total payroll for Engineering", "calculate_department_payroll", `{"department":"Engineering"}`},
		{"who is in Sales", "search_employees_by_department", `{"department":"Sales"}`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			gen, err := g.Generate(context.Background(), Prompt{
				Specialist: "payroll",
				Messages:   []Message{{Role: RoleUser, Content: tt.input}},
				Tools:      allTools,
			})
			require.NoError(t, err)
			require.Equal(t, GenerationToolCall, gen.Kind)
			assert.Equal(t, tt.tool, gen.ToolCall.Name)
			assert.JSONEq(t, tt.args, string(gen.ToolCall.Arguments))
		})
	}
}

func TestRuleGenerator_OnlyOffersAvailableTools(t *testing.T) {
	g := NewRuleGenerator(nil)
	gen, err := g.Generate(context.Background(), Prompt{
		Specialist: "general",
		Messages:   []Message{{Role: RoleUser, Content: "net pay for E001"}},
		Tools:      []ToolSpec{{Name: "get_employee_info"}},
	})
	require.NoError(t, err)
	require.Equal(t, GenerationToolCall, gen.Kind)
	assert.Equal(t, "get_employee_info", gen.ToolCall.Name)
}

func TestRuleGenerator_SummarizesToolResult(t *testing.T) {
	result, _ := json.Marshal(map[string]any{"gross_pay": 9500.0, "employee_id": "E007", "breakdown": map[string]any{}})
	gen, err := NewRuleGenerator(nil).Generate(context.Background(), Prompt{
		Messages: []Message{
			{Role: RoleUser, Content: "gross pay for E007"},
			{Role: RoleTool, Name: "calculate_gross_pay", Content: string(result)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, GenerationContent, gen.Kind)
	assert.Equal(t, "Result of calculate_gross_pay: employee_id: E007, gross_pay: 9500", gen.Content)
}

func TestRuleGenerator_ContextQueryThenAnswer(t *testing.T) {
	g := NewRuleGenerator(nil)
	p := Prompt{
		Specialist: "compliance",
		Messages:   []Message{{Role: RoleUser, Content: "What is the overtime policy?"}},
	}
	gen, err := g.Generate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, GenerationContextQuery, gen.Kind)
	assert.Equal(t, "What is the overtime policy?", gen.Query)

	p.ContextRetrieved = true
	p.Context = []ContextSnippet{{Source: "handbook/overtime", Text: "Overtime is paid at 1.5x.", Score: 0.8}}
	gen, err = g.Generate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, GenerationContent, gen.Kind)
	assert.Contains(t, gen.Content, "Overtime is paid at 1.5x.")
}
