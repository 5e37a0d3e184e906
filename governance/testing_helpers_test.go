package governance

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

func employeeSchema() *types.Schema {
	return types.Object(types.Need("employee_id", types.String().Match(`^E\d{3}$`)))
}

func echoTool(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

// newTestRegistry registers one tool per risk class plus a threshold tool.
func newTestRegistry(totals map[string]float64) *Registry {
	r := NewRegistry(nil)
	_ = r.Register(ToolDescriptor{
		Name:   "get_employee_info",
		Schema: employeeSchema(),
		Risk:   RiskLow,
	}, echoTool)
	_ = r.Register(ToolDescriptor{
		Name:          "terminate_employee",
		Schema:        employeeSchema(),
		Risk:          RiskHigh,
		SideEffecting: true,
	}, echoTool)
	_ = r.Register(ToolDescriptor{
		Name:          "calculate_department_payroll",
		Schema:        types.Object(types.Need("department", types.String().Len(1, 64))),
		Risk:          RiskMedium,
		SideEffecting: true,
		Quantity: func(_ context.Context, args json.RawMessage) (float64, error) {
			var a struct{ Department string }
			if err := json.Unmarshal(args, &a); err != nil {
				return 0, err
			}
			total, ok := totals[a.Department]
			if !ok {
				return 0, errors.New("unknown department")
			}
			return total, nil
		},
	}, echoTool)
	_ = r.Register(ToolDescriptor{
		Name: "calculate_deductions",
		Schema: types.Object(
			types.Need("employee_id", types.String()),
			types.Need("gross_pay", types.Number().Between(0, 1_000_000)),
		),
		Risk:        RiskMedium,
		QuantityArg: "gross_pay",
	}, echoTool)
	return r
}

func testPolicy() *Policy {
	return NewPolicy(map[string][]string{
		"payroll":    {"get_employee_info", "calculate_department_payroll", "calculate_deductions", "terminate_employee"},
		"compliance": {"get_employee_info", "calculate_department_payroll"},
		"general":    {"get_employee_info"},
	}, map[string]float64{
		"calculate_department_payroll": 50000,
		"calculate_deductions":         20000,
	})
}
