package ledger

// DefaultChart is the resort chart of accounts seeded on a fresh install.
var DefaultChart = []AccountInput{
	{Code: "1000", Name: "Cash on Hand", Type: AccountTypeAsset},
	{Code: "1100", Name: "Accounts Receivable", Type: AccountTypeAsset},
	{Code: "1200", Name: "Inventory - Food", Type: AccountTypeAsset},
	{Code: "1210", Name: "Inventory - Beverage", Type: AccountTypeAsset},

	{Code: "2000", Name: "Accounts Payable", Type: AccountTypeLiability},
	{Code: "2100", Name: "Sales Tax Payable", Type: AccountTypeLiability},

	{Code: "4000", Name: "Room Revenue", Type: AccountTypeRevenue},
	{Code: "4100", Name: "Dining Revenue", Type: AccountTypeRevenue},
	{Code: "4200", Name: "Bar Revenue", Type: AccountTypeRevenue},
	{Code: "4300", Name: "Recreation Revenue", Type: AccountTypeRevenue},
	{Code: "4400", Name: "Other Revenue", Type: AccountTypeRevenue},

	{Code: "5000", Name: "Cost of Goods Sold - Food", Type: AccountTypeExpense},
	{Code: "5010", Name: "Cost of Goods Sold - Beverage", Type: AccountTypeExpense},
	{Code: "5100", Name: "Salary Expense", Type: AccountTypeExpense},
	{Code: "5200", Name: "Utility Expense", Type: AccountTypeExpense},
	{Code: "5300", Name: "Maintenance Expense", Type: AccountTypeExpense},
}
