package memory

import ports "finboard/internal/sheets"

// Sample returns a store seeded with a small demo workbook, used when the
// service runs without a spreadsheet.
func Sample() *Store {
	s := New()
	s.SetRows(ports.TransactionsSheet, [][]string{
		{"Date", "Merchant", "Amount", "Group", "Category", "Subcategory", "Account"},
		{"2025-01-02", "Employer", "$4,200.00", "Income", "Salary", "Paycheck", "Checking"},
		{"2025-01-03", "Landlord", "$1,650.00", "Expenses", "Housing", "Rent", "Checking"},
		{"2025-01-07", "Green Market", "$86.40", "Expenses", "Food", "Groceries", "Credit Card"},
		{"2025-01-11", "Corner Cafe", "$6.75", "Expenses", "Food", "Dining", "Credit Card"},
		{"2025-01-15", "Brokerage", "$500.00", "Savings", "Investments", "Index Fund", "Checking"},
		{"2025-01-19", "Green Market", "$64.10", "Expenses", "Food", "Groceries", "Credit Card"},
		{"2025-01-24", "City Power", "$92.33", "Expenses", "Utilities", "Electricity", "Checking"},
		{"2025-02-03", "Employer", "$4,200.00", "Income", "Salary", "Paycheck", "Checking"},
		{"2025-02-03", "Landlord", "$1,650.00", "Expenses", "Housing", "Rent", "Checking"},
		{"2025-02-08", "Corner Cafe", "$5.25", "Expenses", "Food", "Dining", "Credit Card"},
		{"2025-02-09", "Green Market", "$102.87", "Expenses", "Food", "Groceries", "Credit Card"},
		{"2025-02-14", "Bistro", "$74.00", "Expenses", "Food", "Dining", "Credit Card"},
		{"2025-02-21", "City Power", "$88.10", "Expenses", "Utilities", "Electricity", "Checking"},
		{"2025-02-28", "Bank", "$3.12", "Income", "Interest", "Savings Interest", "Savings"},
	})
	s.SetRows(ports.NetWorthSheet, [][]string{
		{"Date", "Account", "Category", "Subcategory", "Balance"},
		{"2025-01-31", "Checking", "Asset", "Cash", "$5,120.45"},
		{"2025-01-31", "Savings", "Asset", "Cash", "$12,000.00"},
		{"2025-01-31", "Brokerage", "Asset", "Investments", "$18,500.00"},
		{"2025-01-31", "Credit Card", "Liability", "Credit Card", "$157.25"},
		{"2025-01-31", "Car Loan", "Liability", "Loans", "$8,400.00"},
		{"2025-02-28", "Checking", "Asset", "Cash", "$6,310.90"},
		{"2025-02-28", "Savings", "Asset", "Cash", "$12,003.12"},
		{"2025-02-28", "Brokerage", "Asset", "Investments", "$19,240.00"},
		{"2025-02-28", "Credit Card", "Liability", "Credit Card", "$182.12"},
		{"2025-02-28", "Car Loan", "Liability", "Loans", "$8,150.00"},
	})
	return s
}
