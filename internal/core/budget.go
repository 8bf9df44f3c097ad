package core

// Budget is one month's plan: a declared income and, through its
// BudgetCategory rows, an allocation per category. At most one Budget
// exists per month; the storage layer enforces that with a unique
// constraint.
type Budget struct {
	ID     int64
	Month  Month
	Income Money
}

// BudgetCategory pairs one budget with one category and the amount
// allocated to it that month. Unique per (BudgetID, CategoryID).
type BudgetCategory struct {
	ID       int64
	BudgetID int64
	// CategoryID refers to the enclosing Category.
	CategoryID int64
	Budgeted   Money
}

// Validate checks the allocation invariants.
func (bc BudgetCategory) Validate() error {
	if bc.Budgeted.Cents < 0 {
		return NewValidationError("budgetedAmount", "must be >= 0")
	}
	return nil
}

// BudgetCategoryView is a budget row joined with its category and the
// computed balance figures for the viewed month.
type BudgetCategoryView struct {
	BudgetCategory
	Category Category
	// Spent is this month's transaction total for the category
	// (negative for net expenses), regardless of category type.
	Spent Money
	// Budgeted is the effective allocation: cumulative for
	// accumulating categories, this month's alone otherwise.
	Budgeted Money
	// Balance is Budgeted plus the transaction window total.
	Balance Money
}

// BudgetView is the full budget-for-month contract handed to the
// presentation layer.
type BudgetView struct {
	Budget     Budget
	Categories []BudgetCategoryView
}

// TotalBudgeted sums the month's own allocations across all rows.
func (v BudgetView) TotalBudgeted() Money {
	var total int64
	for _, c := range v.Categories {
		total += c.BudgetCategory.Budgeted.Cents
	}
	return Money{Cents: total}
}

// LeftToBudget is the income not yet allocated to any category.
func (v BudgetView) LeftToBudget() Money {
	return Money{Cents: v.Budget.Income.Cents - v.TotalBudgeted().Cents}
}

// MonthBreakdown is one row of a category history: the month's own
// allocation and the positive "spent" figure derived from negating the
// month's expense total.
type MonthBreakdown struct {
	Month    Month
	Budgeted Money
	Spent    Money
}
