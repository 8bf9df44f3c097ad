// Package services implements the budgeting engine: balance
// calculation, month continuity, category lifecycle and the
// transaction writer. All monetary math happens here on integer
// cents; handlers and workers stay thin.
package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// BalanceCalculator computes spent/budgeted/balance figures for
// categories. Accumulating ("fund") categories aggregate over all of
// history; everything else is scoped to the requested month.
type BalanceCalculator struct {
	repo *storage.SQLiteRepository
}

func NewBalanceCalculator(repo *storage.SQLiteRepository) *BalanceCalculator {
	return &BalanceCalculator{repo: repo}
}

// TotalBudgeted sums the category's allocations: cumulatively through
// the month for accumulating categories, the month's own allocation
// otherwise.
func (c *BalanceCalculator) TotalBudgeted(ctx context.Context, month core.Month, cat core.Category) (core.Money, error) {
	cents, err := c.repo.SumBudgetedForCategory(ctx, cat.ID, month, cat.Type.IsAccumulating())
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// CurrentBalance is the headline figure: total budgeted plus the
// transaction window total through the end of the month. For
// accumulating categories the window reaches back to the beginning of
// history; for others it covers only the month itself.
func (c *BalanceCalculator) CurrentBalance(ctx context.Context, month core.Month, cat core.Category) (core.Money, error) {
	budgeted, err := c.TotalBudgeted(ctx, month, cat)
	if err != nil {
		return core.Money{}, err
	}
	var windowStart *core.Month
	if !cat.Type.IsAccumulating() {
		windowStart = &month
	}
	transacted, err := c.splitTotal(ctx, cat.ID, windowStart, month)
	if err != nil {
		return core.Money{}, err
	}
	return budgeted.Add(transacted), nil
}

// StartingBalance is the balance at the first instant of the month,
// before any of the month's own transactions. Non-accumulating
// categories reset every month, so for them it is the budgeted amount
// alone; accumulating categories carry every prior split forward.
func (c *BalanceCalculator) StartingBalance(ctx context.Context, month core.Month, cat core.Category) (core.Money, error) {
	budgeted, err := c.TotalBudgeted(ctx, month, cat)
	if err != nil {
		return core.Money{}, err
	}
	if !cat.Type.IsAccumulating() {
		return budgeted, nil
	}
	carried, err := c.repo.SumSplitsForCategory(ctx, cat.ID, nil, month.Start())
	if err != nil {
		return core.Money{}, err
	}
	return budgeted.Add(core.Money{Cents: carried}), nil
}

// Spent is the month's own transaction total, regardless of category
// type. Progress displays use it alongside CurrentBalance.
func (c *BalanceCalculator) Spent(ctx context.Context, month core.Month, cat core.Category) (core.Money, error) {
	start := month
	return c.splitTotal(ctx, cat.ID, &start, month)
}

// splitTotal sums splits through the end of month; a nil start means
// the window opens at the beginning of history.
func (c *BalanceCalculator) splitTotal(ctx context.Context, categoryID int64, start *core.Month, month core.Month) (core.Money, error) {
	var from *time.Time
	if start != nil {
		s := start.Start()
		from = &s
	}
	cents, err := c.repo.SumSplitsForCategory(ctx, categoryID, from, month.NextStart())
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// Balances fills in spent/budgeted/balance for every row of a budget
// view. The four grouped sums it needs are independent, so they run
// concurrently.
func (c *BalanceCalculator) Balances(ctx context.Context, month core.Month, rows []core.BudgetCategoryView) ([]core.BudgetCategoryView, error) {
	if len(rows) == 0 {
		return rows, nil
	}

	var fundIDs, regularIDs, allIDs []int64
	for _, row := range rows {
		allIDs = append(allIDs, row.CategoryID)
		if row.Category.Type.IsAccumulating() {
			fundIDs = append(fundIDs, row.CategoryID)
		} else {
			regularIDs = append(regularIDs, row.CategoryID)
		}
	}

	var (
		monthlySpent     map[int64]int64
		fundHistoryTotal map[int64]int64
		regularBudgeted  map[int64]int64
		fundBudgeted     map[int64]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		monthlySpent, err = c.repo.SumSplitsByCategoryInWindow(gctx, allIDs, month.Start(), month.NextStart())
		return err
	})
	g.Go(func() (err error) {
		fundHistoryTotal, err = c.repo.SumSplitsByCategoryUntil(gctx, fundIDs, month.NextStart())
		return err
	})
	g.Go(func() (err error) {
		regularBudgeted, err = c.repo.SumBudgetedByCategoryForMonth(gctx, regularIDs, month)
		return err
	})
	g.Go(func() (err error) {
		fundBudgeted, err = c.repo.SumBudgetedByCategoryUpTo(gctx, fundIDs, month)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate balances for %s: %w", month, err)
	}

	out := make([]core.BudgetCategoryView, len(rows))
	for i, row := range rows {
		id := row.CategoryID
		spent := monthlySpent[id]
		var budgeted, transacted int64
		if row.Category.Type.IsAccumulating() {
			budgeted = fundBudgeted[id]
			transacted = fundHistoryTotal[id]
		} else {
			budgeted = regularBudgeted[id]
			transacted = spent
		}
		row.Spent = core.Money{Cents: spent}
		row.Budgeted = core.Money{Cents: budgeted}
		row.Balance = core.Money{Cents: budgeted + transacted}
		out[i] = row
	}
	return out, nil
}

// MonthlyBreakdown returns, for every month in [start, end], the
// category's own allocation and the positive spent figure (expense
// splits are stored negative and negated for display).
func (c *BalanceCalculator) MonthlyBreakdown(ctx context.Context, cat core.Category, start, end core.Month) ([]core.MonthBreakdown, error) {
	if end.Before(start) {
		return nil, core.NewValidationError("endMonth", "precedes startMonth")
	}

	var (
		budgetedByMonth map[string]int64
		spentByMonth    map[string]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		budgetedByMonth, err = c.repo.MonthlyBudgetedForCategory(gctx, cat.ID, start, end)
		return err
	})
	g.Go(func() (err error) {
		spentByMonth, err = c.repo.MonthlySplitTotalsForCategory(gctx, cat.ID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("monthly breakdown for category %d: %w", cat.ID, err)
	}

	months := core.MonthsBetween(start, end)
	breakdown := make([]core.MonthBreakdown, len(months))
	for i, m := range months {
		key := m.String()
		breakdown[i] = core.MonthBreakdown{
			Month:    m,
			Budgeted: core.Money{Cents: budgetedByMonth[key]},
			Spent:    core.Money{Cents: -spentByMonth[key]},
		}
	}
	return breakdown, nil
}
