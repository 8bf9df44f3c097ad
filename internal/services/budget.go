package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

const firstMonthCacheKey = "first-budget-month"

// BudgetService resolves "the budget for month M" and guarantees
// continuity: months between the oldest budget and today materialize
// on first view by cloning the nearest prior budget.
type BudgetService struct {
	repo       *storage.SQLiteRepository
	calculator *BalanceCalculator
	// firstMonth memoizes the oldest-budget lookup. It is an injected,
	// invalidable cache rather than ambient process state; every
	// budget creation invalidates it.
	firstMonth *cache.LRUCache[core.Month]
	// now is injectable so tests can pin the current month.
	now func() time.Time
}

func NewBudgetService(repo *storage.SQLiteRepository, calculator *BalanceCalculator, firstMonth *cache.LRUCache[core.Month]) *BudgetService {
	return &BudgetService{
		repo:       repo,
		calculator: calculator,
		firstMonth: firstMonth,
		now:        time.Now,
	}
}

// WithClock replaces the current-time source. Tests use it to make
// "the current month" deterministic.
func (s *BudgetService) WithClock(now func() time.Time) *BudgetService {
	s.now = now
	return s
}

// CurrentMonth is today truncated to its calendar month.
func (s *BudgetService) CurrentMonth() core.Month {
	return core.MonthOf(s.now())
}

// FirstMonth returns the oldest budget month, going to storage only on
// cache misses.
func (s *BudgetService) FirstMonth(ctx context.Context) (core.Month, bool, error) {
	if s.firstMonth != nil {
		if m, ok := s.firstMonth.Get(firstMonthCacheKey); ok {
			return m, true, nil
		}
	}
	m, found, err := s.repo.FirstBudgetMonth(ctx)
	if err != nil || !found {
		return core.Month{}, found, err
	}
	if s.firstMonth != nil {
		s.firstMonth.Set(firstMonthCacheKey, m)
	}
	return m, true, nil
}

func (s *BudgetService) invalidateFirstMonth() {
	if s.firstMonth != nil {
		s.firstMonth.Delete(firstMonthCacheKey)
	}
}

// BudgetForMonth implements the continuity rules. It returns the full
// view with per-category balances, or a *core.RedirectError naming the
// month the caller should request instead:
//
//  1. months after the current one are never materialized;
//  2. an explicit budget is returned as stored;
//  3. a fresh install creates an empty budget for the current month;
//  4. months before the oldest budget redirect to it;
//  5. anything else clones the nearest prior budget.
func (s *BudgetService) BudgetForMonth(ctx context.Context, month core.Month) (core.BudgetView, error) {
	current := s.CurrentMonth()
	if month.After(current) {
		return core.BudgetView{}, core.NewRedirectError(current)
	}

	budget, err := s.repo.GetBudgetByMonth(ctx, month)
	if err == nil {
		return s.buildView(ctx, budget)
	}
	if !isNotFound(err) {
		return core.BudgetView{}, err
	}

	first, found, err := s.FirstMonth(ctx)
	if err != nil {
		return core.BudgetView{}, err
	}
	if !found {
		// Fresh install: materialize an empty budget for today.
		created, _, err := s.repo.CreateBudget(ctx, current, 0, nil)
		if err != nil {
			return core.BudgetView{}, fmt.Errorf("create initial budget: %w", err)
		}
		s.invalidateFirstMonth()
		slog.InfoContext(ctx, "Created initial budget", "month", current.String())
		if month != current {
			return core.BudgetView{}, core.NewRedirectError(current)
		}
		return s.buildView(ctx, created)
	}
	if month.Before(first) {
		// No backfilling into the past.
		return core.BudgetView{}, core.NewRedirectError(first)
	}

	budget, err = s.cloneForMonth(ctx, month)
	if err != nil {
		return core.BudgetView{}, err
	}
	return s.buildView(ctx, budget)
}

// cloneForMonth copies the nearest prior budget's income and
// allocations into a new row for month. Categories already retired as
// of the target month are not carried forward. The unique constraint
// on the month column makes the clone race-safe: a concurrent clone
// simply yields the winner's row.
func (s *BudgetService) cloneForMonth(ctx context.Context, month core.Month) (core.Budget, error) {
	source, found, err := s.repo.GetLatestBudgetBefore(ctx, month)
	if err != nil {
		return core.Budget{}, err
	}

	var (
		income      int64
		allocations []storage.Allocation
	)
	if found {
		income = source.Income.Cents
		rows, err := s.repo.ListBudgetCategories(ctx, source.ID)
		if err != nil {
			return core.Budget{}, err
		}
		for _, row := range rows {
			if row.Category.DeletedMonth != nil && !month.Before(*row.Category.DeletedMonth) {
				continue
			}
			allocations = append(allocations, storage.Allocation{
				CategoryID:    row.CategoryID,
				BudgetedCents: row.BudgetCategory.Budgeted.Cents,
			})
		}
	}

	budget, created, err := s.repo.CreateBudget(ctx, month, income, allocations)
	if err != nil {
		return core.Budget{}, fmt.Errorf("clone budget into %s: %w", month, err)
	}
	if created {
		s.invalidateFirstMonth()
		slog.InfoContext(ctx, "Cloned budget forward",
			"month", month.String(),
			"source_month", source.Month.String(),
			"categories", len(allocations))
	}
	return budget, nil
}

func (s *BudgetService) buildView(ctx context.Context, budget core.Budget) (core.BudgetView, error) {
	rows, err := s.repo.ListBudgetCategories(ctx, budget.ID)
	if err != nil {
		return core.BudgetView{}, err
	}
	rows, err = s.calculator.Balances(ctx, budget.Month, rows)
	if err != nil {
		return core.BudgetView{}, err
	}
	return core.BudgetView{Budget: budget, Categories: rows}, nil
}

// Months lists every selectable month, newest first: from the oldest
// budget through the current month, including months not yet
// materialized.
func (s *BudgetService) Months(ctx context.Context) ([]core.Month, error) {
	current := s.CurrentMonth()
	first, found, err := s.FirstMonth(ctx)
	if err != nil {
		return nil, err
	}
	if !found || first.After(current) {
		return []core.Month{current}, nil
	}
	ascending := core.MonthsBetween(first, current)
	months := make([]core.Month, len(ascending))
	for i, m := range ascending {
		months[len(ascending)-1-i] = m
	}
	return months, nil
}

// SetIncome updates the declared income of a month's budget. The
// month must already be materialized (callers reach it through
// BudgetForMonth first).
func (s *BudgetService) SetIncome(ctx context.Context, month core.Month, income core.Money) error {
	if income.Cents < 0 {
		return core.NewValidationError("income", "must be >= 0")
	}
	budget, err := s.repo.GetBudgetByMonth(ctx, month)
	if err != nil {
		return err
	}
	return s.repo.SetBudgetIncome(ctx, budget.ID, income.Cents)
}

// SetBudgetedAmount sets a category's allocation within a month's
// budget, adding the allocation row if the category was not part of
// that month yet.
func (s *BudgetService) SetBudgetedAmount(ctx context.Context, month core.Month, categoryID int64, amount core.Money) error {
	if amount.Cents < 0 {
		return core.NewValidationError("budgetedAmount", "must be >= 0")
	}
	budget, err := s.repo.GetBudgetByMonth(ctx, month)
	if err != nil {
		return err
	}
	cat, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if !cat.LiveIn(month) {
		return core.NewIntegrityError("category %q is not active in %s", cat.Name, month)
	}
	return s.repo.UpsertBudgetCategory(ctx, budget.ID, categoryID, amount.Cents)
}
