package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bilancio/internal/core"
)

// Allocation is a (category, amount) pair used when creating a budget
// together with its category rows.
type Allocation struct {
	CategoryID    int64
	BudgetedCents int64
}

func scanBudget(row interface{ Scan(...any) error }) (core.Budget, error) {
	var (
		b     core.Budget
		month string
	)
	if err := row.Scan(&b.ID, &month, &b.Income.Cents); err != nil {
		return core.Budget{}, err
	}
	m, err := core.ParseMonth(month)
	if err != nil {
		return core.Budget{}, fmt.Errorf("stored budget month: %w", err)
	}
	b.Month = m
	return b, nil
}

// GetBudgetByMonth loads the budget row for an exact month.
func (r *SQLiteRepository) GetBudgetByMonth(ctx context.Context, month core.Month) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, month, income_cents FROM budgets WHERE month = ?`, month.String())
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget for %s: %w", month, core.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget by month: %w", err)
	}
	return b, nil
}

// GetLatestBudgetBefore returns the most recent budget dated strictly
// before the given month, or found=false if none exists.
func (r *SQLiteRepository) GetLatestBudgetBefore(ctx context.Context, month core.Month) (core.Budget, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, month, income_cents FROM budgets WHERE month < ? ORDER BY month DESC LIMIT 1`,
		month.String())
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("latest budget before %s: %w", month, err)
	}
	return b, true, nil
}

// FirstBudgetMonth returns the oldest budget month, or found=false on
// a fresh database.
func (r *SQLiteRepository) FirstBudgetMonth(ctx context.Context) (core.Month, bool, error) {
	var month string
	err := r.db.QueryRowContext(ctx,
		`SELECT month FROM budgets ORDER BY month ASC LIMIT 1`).Scan(&month)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Month{}, false, nil
	}
	if err != nil {
		return core.Month{}, false, fmt.Errorf("first budget month: %w", err)
	}
	m, err := core.ParseMonth(month)
	if err != nil {
		return core.Month{}, false, fmt.Errorf("stored first month: %w", err)
	}
	return m, true, nil
}

// CreateBudget inserts a budget and its allocation rows atomically.
// The UNIQUE(month) constraint is the only guard against two callers
// racing to materialize the same month: the insert is ON CONFLICT DO
// NOTHING, and when another writer wins the race the existing row is
// returned with created=false and no allocation rows are written.
func (r *SQLiteRepository) CreateBudget(ctx context.Context, month core.Month, incomeCents int64, allocations []Allocation) (core.Budget, bool, error) {
	var (
		budget  core.Budget
		created bool
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (month, income_cents) VALUES (?, ?)
			 ON CONFLICT(month) DO NOTHING`,
			month.String(), incomeCents)
		if err != nil {
			return fmt.Errorf("insert budget: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert budget rows: %w", err)
		}
		if n == 0 {
			// Lost the race; hand back whoever won.
			row := tx.QueryRowContext(ctx,
				`SELECT id, month, income_cents FROM budgets WHERE month = ?`, month.String())
			budget, err = scanBudget(row)
			if err != nil {
				return fmt.Errorf("reload existing budget: %w", err)
			}
			return nil
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("budget insert id: %w", err)
		}
		for _, a := range allocations {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO budget_categories (budget_id, category_id, budgeted_cents) VALUES (?, ?, ?)`,
				id, a.CategoryID, a.BudgetedCents); err != nil {
				return fmt.Errorf("insert budget category %d: %w", a.CategoryID, err)
			}
		}
		budget = core.Budget{ID: id, Month: month, Income: core.Money{Cents: incomeCents}}
		created = true
		return nil
	})
	if err != nil {
		return core.Budget{}, false, err
	}
	return budget, created, nil
}

// SetBudgetIncome updates a budget's declared income.
func (r *SQLiteRepository) SetBudgetIncome(ctx context.Context, budgetID, incomeCents int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET income_cents = ? WHERE id = ?`, incomeCents, budgetID)
	if err != nil {
		return fmt.Errorf("set budget income: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set budget income rows: %w", err)
	}
	if n == 0 {
		return core.NewNotFoundError("budget", budgetID)
	}
	return nil
}

// ListBudgetCategories returns the budget's allocation rows joined
// with their categories, ordered by category name.
func (r *SQLiteRepository) ListBudgetCategories(ctx context.Context, budgetID int64) ([]core.BudgetCategoryView, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bc.id, bc.budget_id, bc.category_id, bc.budgeted_cents,
		        c.id, c.name, c.type, c.created_month, c.deleted_month
		 FROM budget_categories bc
		 JOIN categories c ON c.id = bc.category_id
		 WHERE bc.budget_id = ?
		 ORDER BY c.name ASC`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list budget categories: %w", err)
	}
	defer rows.Close()

	var views []core.BudgetCategoryView
	for rows.Next() {
		var (
			v            core.BudgetCategoryView
			typ          string
			createdMonth string
			deletedMonth sql.NullString
		)
		if err := rows.Scan(
			&v.BudgetCategory.ID, &v.BudgetCategory.BudgetID, &v.BudgetCategory.CategoryID, &v.BudgetCategory.Budgeted.Cents,
			&v.Category.ID, &v.Category.Name, &typ, &createdMonth, &deletedMonth,
		); err != nil {
			return nil, fmt.Errorf("scan budget category: %w", err)
		}
		v.Category.Type = core.CategoryType(typ)
		m, err := core.ParseMonth(createdMonth)
		if err != nil {
			return nil, fmt.Errorf("stored created_month: %w", err)
		}
		v.Category.CreatedMonth = m
		if deletedMonth.Valid {
			dm, err := core.ParseMonth(deletedMonth.String)
			if err != nil {
				return nil, fmt.Errorf("stored deleted_month: %w", err)
			}
			v.Category.DeletedMonth = &dm
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// GetBudgetCategory loads one allocation row, or found=false.
func (r *SQLiteRepository) GetBudgetCategory(ctx context.Context, budgetID, categoryID int64) (core.BudgetCategory, bool, error) {
	var bc core.BudgetCategory
	err := r.db.QueryRowContext(ctx,
		`SELECT id, budget_id, category_id, budgeted_cents
		 FROM budget_categories WHERE budget_id = ? AND category_id = ?`,
		budgetID, categoryID).Scan(&bc.ID, &bc.BudgetID, &bc.CategoryID, &bc.Budgeted.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetCategory{}, false, nil
	}
	if err != nil {
		return core.BudgetCategory{}, false, fmt.Errorf("get budget category: %w", err)
	}
	return bc, true, nil
}

// UpsertBudgetCategory sets a category's allocation in a budget,
// inserting the row if the category was not yet part of that month.
func (r *SQLiteRepository) UpsertBudgetCategory(ctx context.Context, budgetID, categoryID, budgetedCents int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_categories (budget_id, category_id, budgeted_cents)
		 VALUES (?, ?, ?)
		 ON CONFLICT(budget_id, category_id) DO UPDATE SET budgeted_cents = excluded.budgeted_cents`,
		budgetID, categoryID, budgetedCents)
	if err != nil {
		return fmt.Errorf("upsert budget category: %w", err)
	}
	return nil
}
