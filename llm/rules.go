package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// 基于规则的分类器与生成器
// =============================================================================
// 无需模型提供商即可端到端运行；输出完全确定。
// =============================================================================

var intentKeywords = map[string][]string{
	"payroll": {
		"salary", "gross", "net pay", "take-home", "deduction", "tax", "payroll",
		"compensation", "bonus", "payslip", "pay",
	},
	"employee": {
		"leave", "pto", "vacation", "time off", "who works", "position",
		"employee info", "details", "email", "list employees", "search",
	},
	"compliance": {
		"law", "regulation", "compliance", "compliant", "policy", "policies",
		"minimum wage", "overtime rule", "working hours", "contract", "data protection",
	},
	"general": {
		"hello", "hi ", "help", "what can you do", "thanks",
	},
}

// RuleClassifier scores keyword hits per label.
type RuleClassifier struct {
	keywords map[string][]string
}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{keywords: intentKeywords}
}

func (c *RuleClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	lower := " " + strings.ToLower(text) + " "
	hits := make(map[string]float64, len(c.keywords))
	total := 0.0
	for label, words := range c.keywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits[label]++
				total++
			}
		}
	}
	if total == 0 {
		return &Classification{Label: "general", Confidence: 0.5, Scores: map[string]float64{"general": 0.5}}, nil
	}

	labels := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for label, n := range hits {
		labels = append(labels, label)
		scores[label] = n / total
	}
	sort.Slice(labels, func(i, j int) bool {
		if scores[labels[i]] == scores[labels[j]] {
			return labels[i] < labels[j]
		}
		return scores[labels[i]] > scores[labels[j]]
	})
	top := labels[0]
	return &Classification{
		Label:      top,
		Confidence: 0.45 + 0.5*scores[top],
		Scores:     scores,
	}, nil
}

var (
	employeeIDPattern = regexp.MustCompile(`(?i)\bE(?:MP)?0*(\d{1,3})\b`)
	amountPattern     = regexp.MustCompile(`\$?\b(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{1,2}))?\b`)
)

// RuleGenerator maps request phrasing onto the offered tools.
type RuleGenerator struct {
	departments []department
}

type department struct {
	name    string
	pattern *regexp.Regexp
}

// NewRuleGenerator creates a generator that recognises the given department names.
func NewRuleGenerator(departments []string) *RuleGenerator {
	g := &RuleGenerator{departments: make([]department, 0, len(departments))}
	for _, d := range departments {
		g.departments = append(g.departments, department{
			name:    d,
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(d)) + `\b`),
		})
	}
	return g
}

func (g *RuleGenerator) Generate(ctx context.Context, p Prompt) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if n := len(p.Messages); n > 0 && p.Messages[n-1].Role == RoleTool {
		last := p.Messages[n-1]
		return &Generation{Kind: GenerationContent, Content: summarizeToolResult(last.Name, last.Content)}, nil
	}

	input := p.LastUser()
	if call := g.proposeTool(p, input); call != nil {
		return &Generation{Kind: GenerationToolCall, ToolCall: call}, nil
	}

	if !p.ContextRetrieved && strings.TrimSpace(input) != "" && p.Specialist != "general" {
		return &Generation{Kind: GenerationContextQuery, Query: input}, nil
	}
	if len(p.Context) > 0 {
		return &Generation{Kind: GenerationContent, Content: answerFromContext(p.Context)}, nil
	}
	return &Generation{
		Kind:    GenerationContent,
		Content: fmt.Sprintf("I'm the %s assistant. I can look up employees, calculate pay and deductions, check leave balances and answer policy questions.", p.Specialist),
	}, nil
}

func (g *RuleGenerator) proposeTool(p Prompt, input string) *ToolCallRequest {
	lower := strings.ToLower(input)
	employee := extractEmployeeID(input)
	dept := g.extractDepartment(lower)

	type candidate struct {
		tool string
		when bool
		args map[string]any
	}
	candidates := []candidate{
		{"calculate_department_payroll", dept != "" && containsAny(lower, "payroll", "total", "cost", "budget"),
			map[string]any{"department": dept}},
		{"search_employees_by_department", dept != "" && employee == "",
			map[string]any{"department": dept}},
		{"calculate_net_pay", employee != "" && containsAny(lower, "net", "take-home", "take home"),
			map[string]any{"employee_id": employee}},
		{"calculate_deductions", employee != "" && strings.Contains(lower, "deduction") && extractAmount(input) > 0,
			map[string]any{"employee_id": employee, "gross_pay": extractAmount(input)}},
		{"calculate_net_pay", employee != "" && strings.Contains(lower, "deduction"),
			map[string]any{"employee_id": employee}},
		{"calculate_gross_pay", employee != "" && containsAny(lower, "gross", "salary", "pay"),
			map[string]any{"employee_id": employee, "period": period(lower)}},
		{"get_leave_balance", employee != "" && containsAny(lower, "leave", "pto", "vacation", "time off", "days off"),
			map[string]any{"employee_id": employee}},
		{"get_employee_info", employee != "",
			map[string]any{"employee_id": employee}},
	}
	for _, c := range candidates {
		if !c.when || !p.HasTool(c.tool) {
			continue
		}
		args, err := json.Marshal(c.args)
		if err != nil {
			continue
		}
		return &ToolCallRequest{Name: c.tool, Arguments: args}
	}
	return nil
}

func (g *RuleGenerator) extractDepartment(lower string) string {
	for _, d := range g.departments {
		if d.pattern.MatchString(lower) {
			return d.name
		}
	}
	return ""
}

func extractEmployeeID(input string) string {
	m := employeeIDPattern.FindStringSubmatch(input)
	if m == nil {
		return ""
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("E%03d", n)
}

// extractAmount returns the first monetary figure that is not part of an employee id.
func extractAmount(input string) float64 {
	cleaned := employeeIDPattern.ReplaceAllString(input, " ")
	m := amountPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	if m[2] != "" {
		frac, _ := strconv.ParseFloat("0."+m[2], 64)
		v += frac
	}
	return v
}

func period(lower string) string {
	if containsAny(lower, "annual", "yearly", "per year", "a year") {
		return "annual"
	}
	return "monthly"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func summarizeToolResult(tool, content string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err != nil || len(fields) == 0 {
		return fmt.Sprintf("Result of %s: %s", tool, content)
	}
	if msg, ok := fields["error"].(string); ok {
		return fmt.Sprintf("I couldn't complete %s: %s", tool, msg)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case map[string]any, []any:
			continue
		default:
			parts = append(parts, fmt.Sprintf("%s: %v", k, v))
		}
	}
	return fmt.Sprintf("Result of %s: %s", tool, strings.Join(parts, ", "))
}

func answerFromContext(snippets []ContextSnippet) string {
	var b strings.Builder
	b.WriteString("According to the policy handbook:")
	for _, s := range snippets {
		fmt.Fprintf(&b, "\n- %s (%s)", s.Text, s.Source)
	}
	return b.String()
}
