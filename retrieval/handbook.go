package retrieval

// DefaultPolicies is the built-in HR policy handbook.
func DefaultPolicies() []Document {
	return []Document{
		{Source: "handbook/overtime", Title: "Overtime",
			Text: "Overtime is paid at 1.5 times the regular hourly rate for hours worked beyond 40 in a week. Overtime must be approved by a manager in advance and may not exceed 20 hours per month."},
		{Source: "handbook/working-hours", Title: "Working hours",
			Text: "The standard working week is 40 hours. Employees are entitled to a rest period of at least 11 consecutive hours between working days."},
		{Source: "handbook/pto", Title: "Paid time off",
			Text: "Full-time employees accrue between 20 and 28 days of paid time off per year depending on seniority. Unused PTO carries over up to 5 days into the next year."},
		{Source: "handbook/payroll-schedule", Title: "Payroll schedule",
			Text: "Salaries are paid monthly on the last business day of the month. Monthly gross pay is the annual salary divided by twelve."},
		{Source: "handbook/deductions", Title: "Payroll deductions",
			Text: "Payroll deductions include income tax by bracket, the monthly health insurance premium and the retirement contribution percentage elected by the employee."},
		{Source: "handbook/minimum-wage", Title: "Minimum wage",
			Text: "No employee may be paid below the applicable statutory minimum wage. Compliance reviews compare hourly equivalents against the minimum wage each quarter."},
		{Source: "handbook/data-protection", Title: "Data protection",
			Text: "Employee personal data such as social security numbers, bank details and salaries is confidential. Access is limited to payroll and HR staff with a business need."},
		{Source: "handbook/approvals", Title: "Payroll approvals",
			Text: "Department-level payroll runs above the configured threshold require approval by an authorised approver before they are executed."},
	}
}
