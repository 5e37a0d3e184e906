package payroll

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrEmptyDepartment  = errors.New("no employees found in department")
)

// Employee 员工档案
type Employee struct {
	Code                   string    `gorm:"primaryKey;column:employee_code;size:16" json:"employee_code"`
	FullName               string    `gorm:"size:128;not null" json:"full_name"`
	Email                  string    `gorm:"size:255;uniqueIndex" json:"email"`
	Department             string    `gorm:"size:64;not null;index" json:"department"`
	Position               string    `gorm:"size:128" json:"position"`
	AnnualSalary           float64   `gorm:"not null" json:"annual_salary"`
	Currency               string    `gorm:"size:3;default:USD" json:"currency"`
	TaxBracket             float64   `json:"tax_bracket"`
	HealthInsuranceMonthly float64   `json:"health_insurance_monthly"`
	RetirementPct          float64   `json:"retirement_pct"`
	PTODaysTotal           int       `gorm:"column:pto_days_total" json:"pto_days_total"`
	PTODaysUsed            int       `gorm:"column:pto_days_used" json:"pto_days_used"`
	Active                 bool      `gorm:"default:true" json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (Employee) TableName() string {
	return "employees"
}

// Directory is the read side of the employee records used by the tools.
type Directory interface {
	Get(ctx context.Context, code string) (*Employee, error)
	ListByDepartment(ctx context.Context, department string) ([]*Employee, error)
	Departments(ctx context.Context) ([]string, error)
}

// Deductions 扣除明细
type Deductions struct {
	TaxRate         float64 `json:"tax_rate"`
	Tax             float64 `json:"tax"`
	HealthInsurance float64 `json:"health_insurance"`
	RetirementRate  float64 `json:"retirement_rate"`
	Retirement      float64 `json:"retirement"`
	Total           float64 `json:"total"`
}

// MonthlyGross is annual salary / 12, unrounded.
func (e *Employee) MonthlyGross() float64 {
	return e.AnnualSalary / 12
}

// DeductionsFor computes deductions on a gross amount.
func (e *Employee) DeductionsFor(gross float64) Deductions {
	tax := round2(gross * e.TaxBracket / 100)
	retirement := round2(gross * e.RetirementPct / 100)
	return Deductions{
		TaxRate:         e.TaxBracket,
		Tax:             tax,
		HealthInsurance: e.HealthInsuranceMonthly,
		RetirementRate:  e.RetirementPct,
		Retirement:      retirement,
		Total:           round2(tax + e.HealthInsuranceMonthly + retirement),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
