package payroll

// DemoEmployees is the demo roster. Engineering's monthly gross (50,750.00)
// sits above the default department payroll approval threshold.
func DemoEmployees() []Employee {
	return []Employee{
		{Code: "E001", FullName: "Amina Benali", Email: "amina.benali@example.com", Department: "Engineering", Position: "Senior Backend Engineer",
			AnnualSalary: 120000, Currency: "USD", TaxBracket: 24, HealthInsuranceMonthly: 320, RetirementPct: 5, PTODaysTotal: 25, PTODaysUsed: 8, Active: true},
		{Code: "E002", FullName: "Karim Haddad", Email: "karim.haddad@example.com", Department: "Engineering", Position: "Engineering Manager",
			AnnualSalary: 135000, Currency: "USD", TaxBracket: 32, HealthInsuranceMonthly: 350, RetirementPct: 6, PTODaysTotal: 28, PTODaysUsed: 12, Active: true},
		{Code: "E003", FullName: "Lina Mansouri", Email: "lina.mansouri@example.com", Department: "Engineering", Position: "Frontend Engineer",
			AnnualSalary: 98000, Currency: "USD", TaxBracket: 22, HealthInsuranceMonthly: 280, RetirementPct: 4, PTODaysTotal: 22, PTODaysUsed: 5, Active: true},
		{Code: "E004", FullName: "Youssef Amrani", Email: "youssef.amrani@example.com", Department: "Sales", Position: "Account Executive",
			AnnualSalary: 85000, Currency: "USD", TaxBracket: 22, HealthInsuranceMonthly: 260, RetirementPct: 4, PTODaysTotal: 20, PTODaysUsed: 14, Active: true},
		{Code: "E005", FullName: "Sofia Kaci", Email: "sofia.kaci@example.com", Department: "Finance", Position: "Financial Controller",
			AnnualSalary: 105000, Currency: "USD", TaxBracket: 24, HealthInsuranceMonthly: 300, RetirementPct: 5, PTODaysTotal: 25, PTODaysUsed: 3, Active: true},
		{Code: "E006", FullName: "Fatima Zerhouni", Email: "fatima.zerhouni@example.com", Department: "HR", Position: "HR Business Partner",
			AnnualSalary: 78000, Currency: "USD", TaxBracket: 22, HealthInsuranceMonthly: 250, RetirementPct: 4, PTODaysTotal: 22, PTODaysUsed: 10, Active: true},
		{Code: "E007", FullName: "Omar Belkacem", Email: "omar.belkacem@example.com", Department: "Engineering", Position: "Site Reliability Engineer",
			AnnualSalary: 114000, Currency: "USD", TaxBracket: 24, HealthInsuranceMonthly: 310, RetirementPct: 5, PTODaysTotal: 25, PTODaysUsed: 11, Active: true},
		{Code: "E008", FullName: "Nadia Cherif", Email: "nadia.cherif@example.com", Department: "Engineering", Position: "Staff Engineer",
			AnnualSalary: 142000, Currency: "USD", TaxBracket: 32, HealthInsuranceMonthly: 360, RetirementPct: 6, PTODaysTotal: 28, PTODaysUsed: 6, Active: true},
		{Code: "E009", FullName: "Rayan Meziane", Email: "rayan.meziane@example.com", Department: "Sales", Position: "Sales Development Rep",
			AnnualSalary: 72000, Currency: "USD", TaxBracket: 22, HealthInsuranceMonthly: 240, RetirementPct: 3, PTODaysTotal: 20, PTODaysUsed: 2, Active: true},
		{Code: "E010", FullName: "Ines Boudiaf", Email: "ines.boudiaf@example.com", Department: "Finance", Position: "Payroll Analyst",
			AnnualSalary: 91000, Currency: "USD", TaxBracket: 22, HealthInsuranceMonthly: 270, RetirementPct: 4, PTODaysTotal: 22, PTODaysUsed: 9, Active: true},
	}
}
