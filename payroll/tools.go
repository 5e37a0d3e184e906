package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// Tool names
const (
	ToolGetEmployeeInfo      = "get_employee_info"
	ToolCalculateGrossPay    = "calculate_gross_pay"
	ToolCalculateDeductions  = "calculate_deductions"
	ToolCalculateNetPay      = "calculate_net_pay"
	ToolGetLeaveBalance      = "get_leave_balance"
	ToolSearchByDepartment   = "search_employees_by_department"
	ToolCalculateDeptPayroll = "calculate_department_payroll"
)

const (
	maxDeductibleGrossPay     = 1_000_000
	defaultPayrollToolTimeout = 10 * time.Second
)

// Service implements the payroll tools over a Directory.
type Service struct {
	dir     Directory
	timeout time.Duration
	totals  singleflight.Group
}

func NewService(dir Directory, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultPayrollToolTimeout
	}
	return &Service{dir: dir, timeout: timeout}
}

// DepartmentPayroll 部门月度薪资汇总
type DepartmentPayroll struct {
	Department      string            `json:"department"`
	EmployeeCount   int               `json:"employee_count"`
	TotalGross      float64           `json:"total_monthly_gross"`
	TotalDeductions float64           `json:"total_monthly_deductions"`
	TotalNet        float64           `json:"total_monthly_net"`
	Employees       []EmployeePayslip `json:"employees"`
	Currency        string            `json:"currency"`
}

// EmployeePayslip 单个员工月度概要
type EmployeePayslip struct {
	EmployeeCode string  `json:"employee_code"`
	Name         string  `json:"name"`
	Gross        float64 `json:"gross"`
	Net          float64 `json:"net"`
}

// DepartmentTotals computes a department's monthly payroll. Concurrent calls
// for the same department share one directory read.
func (s *Service) DepartmentTotals(ctx context.Context, department string) (*DepartmentPayroll, error) {
	v, err, _ := s.totals.Do(strings.ToLower(department), func() (any, error) {
		employees, err := s.dir.ListByDepartment(ctx, department)
		if err != nil {
			return nil, err
		}
		if len(employees) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrEmptyDepartment, department)
		}
		out := &DepartmentPayroll{Department: department, EmployeeCount: len(employees), Currency: employees[0].Currency}
		var gross, deductions, net float64
		for _, e := range employees {
			g := e.MonthlyGross()
			d := e.DeductionsFor(g)
			gross += g
			deductions += d.Total
			net += g - d.Total
			out.Employees = append(out.Employees, EmployeePayslip{
				EmployeeCode: e.Code,
				Name:         e.FullName,
				Gross:        round2(g),
				Net:          round2(g - d.Total),
			})
		}
		out.TotalGross = round2(gross)
		out.TotalDeductions = round2(deductions)
		out.TotalNet = round2(net)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DepartmentPayroll), nil
}

func employeeIDSchema() *types.Schema {
	return types.String().Match(`^E\d{3}$`).Describe("Employee code, e.g. E007")
}

func departmentSchema() *types.Schema {
	return types.Object(
		types.Need("department", types.String().Len(1, 64).Describe("Department name, e.g. Engineering")),
	)
}

func employeeOnlySchema() *types.Schema {
	return types.Object(types.Need("employee_id", employeeIDSchema()))
}

// Register adds every payroll tool to the registry.
func (s *Service) Register(reg *governance.Registry) error {
	tools := []struct {
		desc governance.ToolDescriptor
		fn   governance.ToolFunc
	}{
		{governance.ToolDescriptor{
			Name:        ToolGetEmployeeInfo,
			Description: "Look up an employee's record: name, department, position, salary, tax and benefits.",
			Schema:      employeeOnlySchema(),
			Risk:        governance.RiskLow,
		}, s.getEmployeeInfo},
		{governance.ToolDescriptor{
			Name:        ToolCalculateGrossPay,
			Description: "Calculate an employee's gross pay for a monthly or annual period.",
			Schema: types.Object(
				types.Need("employee_id", employeeIDSchema()),
				types.Field("period", types.OneOf("monthly", "annual").Or("monthly")),
			),
			Risk: governance.RiskLow,
		}, s.calculateGrossPay},
		{governance.ToolDescriptor{
			Name:        ToolCalculateDeductions,
			Description: "Itemize tax, health insurance and retirement deductions on a gross amount.",
			Schema: types.Object(
				types.Need("employee_id", employeeIDSchema()),
				types.Need("gross_pay", types.Number().Between(0, maxDeductibleGrossPay)),
			),
			Risk: governance.RiskLow,
		}, s.calculateDeductions},
		{governance.ToolDescriptor{
			Name:        ToolCalculateNetPay,
			Description: "Calculate an employee's monthly net pay: gross minus all deductions.",
			Schema:      employeeOnlySchema(),
			Risk:        governance.RiskLow,
		}, s.calculateNetPay},
		{governance.ToolDescriptor{
			Name:        ToolGetLeaveBalance,
			Description: "Check an employee's PTO balance: total, used and remaining days.",
			Schema:      employeeOnlySchema(),
			Risk:        governance.RiskLow,
		}, s.getLeaveBalance},
		{governance.ToolDescriptor{
			Name:        ToolSearchByDepartment,
			Description: "List the employees of a department.",
			Schema:      departmentSchema(),
			Risk:        governance.RiskLow,
		}, s.searchByDepartment},
		{governance.ToolDescriptor{
			Name:          ToolCalculateDeptPayroll,
			Description:   "Calculate the total monthly payroll cost of a department.",
			Schema:        departmentSchema(),
			Risk:          governance.RiskMedium,
			SideEffecting: true,
			Quantity:      s.departmentQuantity,
		}, s.calculateDepartmentPayroll},
	}
	for _, t := range tools {
		t.desc.Timeout = s.timeout
		if err := reg.Register(t.desc, t.fn); err != nil {
			return err
		}
	}
	return nil
}

type employeeArgs struct {
	EmployeeID string  `json:"employee_id"`
	Period     string  `json:"period"`
	GrossPay   float64 `json:"gross_pay"`
}

type departmentArgs struct {
	Department string `json:"department"`
}

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("decode arguments: %w", err)
	}
	return v, nil
}

func (s *Service) employee(ctx context.Context, args json.RawMessage) (*Employee, employeeArgs, error) {
	a, err := decode[employeeArgs](args)
	if err != nil {
		return nil, a, err
	}
	e, err := s.dir.Get(ctx, a.EmployeeID)
	return e, a, err
}

func (s *Service) getEmployeeInfo(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	e, _, err := s.employee(ctx, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"employee_id":   e.Code,
		"full_name":     e.FullName,
		"email":         e.Email,
		"department":    e.Department,
		"position":      e.Position,
		"annual_salary": e.AnnualSalary,
		"currency":      e.Currency,
		"tax_bracket":   e.TaxBracket,
		"benefits": map[string]any{
			"health_insurance_monthly": e.HealthInsuranceMonthly,
			"retirement_pct":           e.RetirementPct,
			"pto_days_total":           e.PTODaysTotal,
		},
		"is_active": e.Active,
	})
}

func (s *Service) calculateGrossPay(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	e, a, err := s.employee(ctx, args)
	if err != nil {
		return nil, err
	}
	period := a.Period
	if period == "" {
		period = "monthly"
	}
	gross := e.AnnualSalary
	if period == "monthly" {
		gross = e.MonthlyGross()
	}
	return json.Marshal(map[string]any{
		"employee_id":   e.Code,
		"employee_name": e.FullName,
		"period":        period,
		"annual_salary": e.AnnualSalary,
		"gross_pay":     round2(gross),
		"currency":      e.Currency,
	})
}

func (s *Service) calculateDeductions(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	e, a, err := s.employee(ctx, args)
	if err != nil {
		return nil, err
	}
	d := e.DeductionsFor(a.GrossPay)
	return json.Marshal(map[string]any{
		"employee_id":      e.Code,
		"employee_name":    e.FullName,
		"gross_pay":        a.GrossPay,
		"deductions":       d,
		"total_deductions": d.Total,
		"net_pay":          round2(a.GrossPay - d.Total),
	})
}

func (s *Service) calculateNetPay(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	e, _, err := s.employee(ctx, args)
	if err != nil {
		return nil, err
	}
	gross := e.MonthlyGross()
	d := e.DeductionsFor(gross)
	return json.Marshal(map[string]any{
		"employee_id":      e.Code,
		"employee_name":    e.FullName,
		"period":           "monthly",
		"gross_pay":        round2(gross),
		"deductions":       d,
		"total_deductions": d.Total,
		"net_pay":          round2(gross - d.Total),
		"currency":         e.Currency,
	})
}

func (s *Service) getLeaveBalance(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	e, _, err := s.employee(ctx, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"employee_id":        e.Code,
		"employee_name":      e.FullName,
		"pto_days_total":     e.PTODaysTotal,
		"pto_days_used":      e.PTODaysUsed,
		"pto_days_remaining": e.PTODaysTotal - e.PTODaysUsed,
	})
}

func (s *Service) searchByDepartment(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	a, err := decode[departmentArgs](args)
	if err != nil {
		return nil, err
	}
	employees, err := s.dir.ListByDepartment(ctx, a.Department)
	if err != nil {
		return nil, err
	}
	list := make([]map[string]any, 0, len(employees))
	for _, e := range employees {
		list = append(list, map[string]any{
			"employee_id":   e.Code,
			"full_name":     e.FullName,
			"position":      e.Position,
			"annual_salary": e.AnnualSalary,
		})
	}
	return json.Marshal(map[string]any{
		"department":     a.Department,
		"employee_count": len(employees),
		"employees":      list,
	})
}

func (s *Service) calculateDepartmentPayroll(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	a, err := decode[departmentArgs](args)
	if err != nil {
		return nil, err
	}
	totals, err := s.DepartmentTotals(ctx, a.Department)
	if err != nil {
		return nil, err
	}
	return json.Marshal(totals)
}

// departmentQuantity is the governance probe: the department's monthly gross.
func (s *Service) departmentQuantity(ctx context.Context, args json.RawMessage) (float64, error) {
	a, err := decode[departmentArgs](args)
	if err != nil {
		return 0, err
	}
	totals, err := s.DepartmentTotals(ctx, a.Department)
	if err != nil {
		return 0, err
	}
	return totals.TotalGross, nil
}
