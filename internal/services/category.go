package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

// CategoryService owns the category lifecycle: creation, renames,
// type changes, and the soft/hard delete split that keeps historical
// months intact.
type CategoryService struct {
	repo       *storage.SQLiteRepository
	budgets    *BudgetService
	calculator *BalanceCalculator
}

func NewCategoryService(repo *storage.SQLiteRepository, budgets *BudgetService, calculator *BalanceCalculator) *CategoryService {
	return &CategoryService{repo: repo, budgets: budgets, calculator: calculator}
}

// CategoryDetail is the per-category view: identity, this month's
// figures, the recent transactions touching it and a month-by-month
// history for charting.
type CategoryDetail struct {
	Category        core.Category
	Month           core.Month
	Budgeted        core.Money
	Spent           core.Money
	Balance         core.Money
	StartingBalance core.Money
	Deletable       bool
	Transactions    []core.CategoryTransaction
	History         []core.MonthBreakdown
}

// Create registers a new category, active from the given month
// onward. The category starts with a zero allocation in the creation
// month's budget if one is already materialized.
func (s *CategoryService) Create(ctx context.Context, name string, typ core.CategoryType, month core.Month) (core.Category, error) {
	if err := (core.Category{Name: name, Type: typ, CreatedMonth: month}).Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := s.repo.CreateCategory(ctx, name, typ, month)
	if err != nil {
		return core.Category{}, err
	}
	// Attach a zero allocation to the creation month's budget when it
	// is already materialized, so the category shows up immediately.
	if budget, err := s.repo.GetBudgetByMonth(ctx, month); err == nil {
		if err := s.repo.UpsertBudgetCategory(ctx, budget.ID, created.ID, 0); err != nil {
			return core.Category{}, err
		}
	} else if !isNotFound(err) {
		return core.Category{}, err
	}
	slog.InfoContext(ctx, "Created category", "category", created.Name, "type", string(created.Type))
	return created, nil
}

// Rename changes a category's display name everywhere, past months
// included.
func (s *CategoryService) Rename(ctx context.Context, id int64, name string) error {
	if name == "" {
		return core.NewValidationError("name", "must not be empty")
	}
	if _, err := s.repo.GetCategory(ctx, id); err != nil {
		return err
	}
	return s.repo.RenameCategory(ctx, id, name)
}

// SetType changes how a category's balance is computed from now on.
// Historical months are reinterpreted under the new type; that is the
// intended behavior, a type change is a statement about the category,
// not about one month.
func (s *CategoryService) SetType(ctx context.Context, id int64, typ core.CategoryType) error {
	if _, err := core.ParseCategoryType(string(typ)); err != nil {
		return err
	}
	cat, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if cat.Type == core.Fixed {
		return core.NewIntegrityError("category %q is fixed and cannot change type", cat.Name)
	}
	return s.repo.SetCategoryType(ctx, id, typ)
}

// IsDeletable reports whether the category can be removed outright:
// no budget allocations and no transaction splits reference it.
func (s *CategoryService) IsDeletable(ctx context.Context, id int64) (bool, error) {
	allocations, splits, err := s.repo.CategoryDependentCounts(ctx, id)
	if err != nil {
		return false, err
	}
	return allocations == 0 && splits == 0, nil
}

// Delete retires a category as of the given month. A category with no
// history anywhere is removed for good; one with history is
// soft-deleted, which drops it from the given month and every later
// budget while leaving earlier months untouched. Soft deletion
// refuses cutoffs before the category's creation month and months
// that already have splits for the category on or after the cutoff.
func (s *CategoryService) Delete(ctx context.Context, id int64, from core.Month) error {
	cat, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	deletable, err := s.IsDeletable(ctx, id)
	if err != nil {
		return err
	}
	if deletable {
		slog.InfoContext(ctx, "Deleting category", "category", cat.Name)
		return s.repo.HardDeleteCategory(ctx, id)
	}
	if from.Before(cat.CreatedMonth) {
		return core.NewIntegrityError("category %q cannot be retired before its creation month %s", cat.Name, cat.CreatedMonth)
	}
	has, err := s.repo.CategoryHasSplitsOnOrAfter(ctx, id, from.Start())
	if err != nil {
		return err
	}
	if has {
		return core.NewIntegrityError("category %q has transactions in or after %s", cat.Name, from)
	}
	slog.InfoContext(ctx, "Retiring category", "category", cat.Name, "from", from.String())
	return s.repo.SoftDeleteCategory(ctx, id, from)
}

// ValidateTransactionDate rejects splits dated outside the category's
// active window: before its creation month or in or after its deleted
// month.
func (s *CategoryService) ValidateTransactionDate(ctx context.Context, id int64, date time.Time) (core.Category, error) {
	cat, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	m := core.MonthOf(date)
	if !cat.LiveIn(m) {
		return core.Category{}, core.NewIntegrityError("category %q is not active in %s", cat.Name, m)
	}
	return cat, nil
}

// List returns all categories, retired ones included, sorted by name.
func (s *CategoryService) List(ctx context.Context) ([]core.Category, error) {
	return s.repo.ListCategories(ctx)
}

// Detail assembles the category page for one month. The month obeys
// the same continuity rules as the budget view, so requesting a
// future month redirects rather than fabricating figures.
func (s *CategoryService) Detail(ctx context.Context, id int64, month core.Month, includeTransfers bool, historyMonths int) (CategoryDetail, error) {
	view, err := s.budgets.BudgetForMonth(ctx, month)
	if err != nil {
		return CategoryDetail{}, err
	}
	cat, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return CategoryDetail{}, err
	}

	detail := CategoryDetail{Category: cat, Month: month}
	inBudget := false
	for _, row := range view.Categories {
		if row.CategoryID == id {
			detail.Budgeted = row.Budgeted
			detail.Spent = row.Spent
			detail.Balance = row.Balance
			inBudget = true
			break
		}
	}
	if !inBudget {
		// Not part of this month's budget (no allocation row yet);
		// compute the figures directly.
		if detail.Budgeted, err = s.calculator.TotalBudgeted(ctx, month, cat); err != nil {
			return CategoryDetail{}, err
		}
		if detail.Spent, err = s.calculator.Spent(ctx, month, cat); err != nil {
			return CategoryDetail{}, err
		}
		if detail.Balance, err = s.calculator.CurrentBalance(ctx, month, cat); err != nil {
			return CategoryDetail{}, err
		}
	}

	detail.StartingBalance, err = s.calculator.StartingBalance(ctx, month, cat)
	if err != nil {
		return CategoryDetail{}, err
	}
	detail.Deletable, err = s.IsDeletable(ctx, id)
	if err != nil {
		return CategoryDetail{}, err
	}

	// Fund categories list everything up to the end of the month;
	// regular ones just the month.
	start := month.Start()
	next := month.NextStart()
	if cat.Type.IsAccumulating() {
		detail.Transactions, err = s.repo.ListCategorySplits(ctx, id, time.Time{}, next, includeTransfers)
	} else {
		detail.Transactions, err = s.repo.ListCategorySplits(ctx, id, start, next, includeTransfers)
	}
	if err != nil {
		return CategoryDetail{}, err
	}

	// Fixed categories are system-managed and carry no history view.
	if historyMonths > 0 && cat.Type != core.Fixed {
		from := month
		for i := 1; i < historyMonths; i++ {
			from = from.Prev()
		}
		if from.Before(cat.CreatedMonth) {
			from = cat.CreatedMonth
		}
		detail.History, err = s.calculator.MonthlyBreakdown(ctx, cat, from, month)
		if err != nil {
			return CategoryDetail{}, err
		}
	}
	return detail, nil
}
