package storage

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/core"
)

// The balance calculator's windows all reduce to a handful of grouped
// sums over splits and allocations. Each method returns cents keyed by
// category id; categories with no matching rows are absent from the
// map and read as zero.

func (r *SQLiteRepository) sumByCategory(ctx context.Context, query string, args []any) (map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[int64]int64)
	for rows.Next() {
		var (
			categoryID int64
			cents      int64
		)
		if err := rows.Scan(&categoryID, &cents); err != nil {
			return nil, err
		}
		sums[categoryID] = cents
	}
	return sums, rows.Err()
}

// SumSplitsByCategoryInWindow groups split totals for dates in
// [start, next).
func (r *SQLiteRepository) SumSplitsByCategoryInWindow(ctx context.Context, categoryIDs []int64, start, next time.Time) (map[int64]int64, error) {
	if len(categoryIDs) == 0 {
		return map[int64]int64{}, nil
	}
	query, args := inClause(
		`SELECT tc.category_id, COALESCE(SUM(tc.amount_cents), 0)
		 FROM transaction_categories tc
		 JOIN transactions t ON t.id = tc.transaction_id
		 WHERE tc.category_id IN (%s) AND t.date >= ? AND t.date < ?
		 GROUP BY tc.category_id`, categoryIDs)
	args = append(args, start.Format(dateLayout), next.Format(dateLayout))
	sums, err := r.sumByCategory(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("sum splits in window: %w", err)
	}
	return sums, nil
}

// SumSplitsByCategoryUntil groups split totals for all dates strictly
// before next, the full-history window accumulating categories use.
func (r *SQLiteRepository) SumSplitsByCategoryUntil(ctx context.Context, categoryIDs []int64, next time.Time) (map[int64]int64, error) {
	if len(categoryIDs) == 0 {
		return map[int64]int64{}, nil
	}
	query, args := inClause(
		`SELECT tc.category_id, COALESCE(SUM(tc.amount_cents), 0)
		 FROM transaction_categories tc
		 JOIN transactions t ON t.id = tc.transaction_id
		 WHERE tc.category_id IN (%s) AND t.date < ?
		 GROUP BY tc.category_id`, categoryIDs)
	args = append(args, next.Format(dateLayout))
	sums, err := r.sumByCategory(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("sum splits until: %w", err)
	}
	return sums, nil
}

// SumBudgetedByCategoryForMonth groups allocations belonging to one
// exact budget month.
func (r *SQLiteRepository) SumBudgetedByCategoryForMonth(ctx context.Context, categoryIDs []int64, month core.Month) (map[int64]int64, error) {
	if len(categoryIDs) == 0 {
		return map[int64]int64{}, nil
	}
	query, args := inClause(
		`SELECT bc.category_id, COALESCE(SUM(bc.budgeted_cents), 0)
		 FROM budget_categories bc
		 JOIN budgets b ON b.id = bc.budget_id
		 WHERE bc.category_id IN (%s) AND b.month = ?
		 GROUP BY bc.category_id`, categoryIDs)
	args = append(args, month.String())
	sums, err := r.sumByCategory(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("sum budgeted for month: %w", err)
	}
	return sums, nil
}

// SumBudgetedByCategoryUpTo groups cumulative allocations across all
// budget months up to and including the given one.
func (r *SQLiteRepository) SumBudgetedByCategoryUpTo(ctx context.Context, categoryIDs []int64, month core.Month) (map[int64]int64, error) {
	if len(categoryIDs) == 0 {
		return map[int64]int64{}, nil
	}
	query, args := inClause(
		`SELECT bc.category_id, COALESCE(SUM(bc.budgeted_cents), 0)
		 FROM budget_categories bc
		 JOIN budgets b ON b.id = bc.budget_id
		 WHERE bc.category_id IN (%s) AND b.month <= ?
		 GROUP BY bc.category_id`, categoryIDs)
	args = append(args, month.String())
	sums, err := r.sumByCategory(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("sum budgeted up to month: %w", err)
	}
	return sums, nil
}

// MonthlyBudgetedForCategory returns one category's own allocation per
// month inside [start, end], keyed by canonical month string.
func (r *SQLiteRepository) MonthlyBudgetedForCategory(ctx context.Context, categoryID int64, start, end core.Month) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.month, COALESCE(SUM(bc.budgeted_cents), 0)
		 FROM budget_categories bc
		 JOIN budgets b ON b.id = bc.budget_id
		 WHERE bc.category_id = ? AND b.month >= ? AND b.month <= ?
		 GROUP BY b.month`,
		categoryID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("monthly budgeted: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var (
			month string
			cents int64
		)
		if err := rows.Scan(&month, &cents); err != nil {
			return nil, fmt.Errorf("scan monthly budgeted: %w", err)
		}
		sums[month] = cents
	}
	return sums, rows.Err()
}

// MonthlySplitTotalsForCategory returns one category's split total per
// month inside [start, end], keyed by canonical month string. The
// month key is derived from the date column's "YYYY-MM" prefix.
func (r *SQLiteRepository) MonthlySplitTotalsForCategory(ctx context.Context, categoryID int64, start, end core.Month) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(t.date, 1, 7) AS month, COALESCE(SUM(tc.amount_cents), 0)
		 FROM transaction_categories tc
		 JOIN transactions t ON t.id = tc.transaction_id
		 WHERE tc.category_id = ? AND t.date >= ? AND t.date < ?
		 GROUP BY month`,
		categoryID, start.Start().Format(dateLayout), end.NextStart().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("monthly split totals: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var (
			month string
			cents int64
		)
		if err := rows.Scan(&month, &cents); err != nil {
			return nil, fmt.Errorf("scan monthly split total: %w", err)
		}
		sums[month] = cents
	}
	return sums, rows.Err()
}

// SumSplitsForCategory is the single-category form of the window sums:
// start nil means "from the beginning of history".
func (r *SQLiteRepository) SumSplitsForCategory(ctx context.Context, categoryID int64, start *time.Time, next time.Time) (int64, error) {
	var (
		cents int64
		err   error
	)
	if start != nil {
		err = r.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(tc.amount_cents), 0)
			 FROM transaction_categories tc
			 JOIN transactions t ON t.id = tc.transaction_id
			 WHERE tc.category_id = ? AND t.date >= ? AND t.date < ?`,
			categoryID, start.Format(dateLayout), next.Format(dateLayout)).Scan(&cents)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(tc.amount_cents), 0)
			 FROM transaction_categories tc
			 JOIN transactions t ON t.id = tc.transaction_id
			 WHERE tc.category_id = ? AND t.date < ?`,
			categoryID, next.Format(dateLayout)).Scan(&cents)
	}
	if err != nil {
		return 0, fmt.Errorf("sum splits for category: %w", err)
	}
	return cents, nil
}

// SumBudgetedForCategory is the single-category form of the allocation
// sums: cumulative up to month when cumulative is set, the month's own
// allocation otherwise.
func (r *SQLiteRepository) SumBudgetedForCategory(ctx context.Context, categoryID int64, month core.Month, cumulative bool) (int64, error) {
	comparison := "="
	if cumulative {
		comparison = "<="
	}
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(bc.budgeted_cents), 0)
		 FROM budget_categories bc
		 JOIN budgets b ON b.id = bc.budget_id
		 WHERE bc.category_id = ? AND b.month `+comparison+` ?`,
		categoryID, month.String()).Scan(&cents)
	if err != nil {
		return 0, fmt.Errorf("sum budgeted for category: %w", err)
	}
	return cents, nil
}
