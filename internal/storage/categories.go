package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
)

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		cat          core.Category
		typ          string
		createdMonth string
		deletedMonth sql.NullString
	)
	if err := row.Scan(&cat.ID, &cat.Name, &typ, &createdMonth, &deletedMonth); err != nil {
		return core.Category{}, err
	}
	cat.Type = core.CategoryType(typ)
	m, err := core.ParseMonth(createdMonth)
	if err != nil {
		return core.Category{}, fmt.Errorf("stored created_month: %w", err)
	}
	cat.CreatedMonth = m
	if deletedMonth.Valid {
		dm, err := core.ParseMonth(deletedMonth.String)
		if err != nil {
			return core.Category{}, fmt.Errorf("stored deleted_month: %w", err)
		}
		cat.DeletedMonth = &dm
	}
	return cat, nil
}

const categoryColumns = "id, name, type, created_month, deleted_month"

// CreateCategory inserts a category that becomes active in the given
// month.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string, typ core.CategoryType, created core.Month) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, type, created_month) VALUES (?, ?, ?)`,
		name, string(typ), created.String())
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category insert id: %w", err)
	}
	return core.Category{ID: id, Name: name, Type: typ, CreatedMonth: created}, nil
}

// GetCategory loads one category by id.
func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return cat, nil
}

// ListCategories returns every category ordered by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

// GetCategoriesByIDs loads the given categories keyed by id. Missing
// ids are simply absent from the map.
func (r *SQLiteRepository) GetCategoriesByIDs(ctx context.Context, ids []int64) (map[int64]core.Category, error) {
	cats := make(map[int64]core.Category, len(ids))
	if len(ids) == 0 {
		return cats, nil
	}
	query, args := inClause(`SELECT `+categoryColumns+` FROM categories WHERE id IN (%s)`, ids)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get categories by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats[cat.ID] = cat
	}
	return cats, rows.Err()
}

// RenameCategory updates the display name.
func (r *SQLiteRepository) RenameCategory(ctx context.Context, id int64, name string) error {
	return r.updateCategoryField(ctx, id, `UPDATE categories SET name = ? WHERE id = ?`, name)
}

// SetCategoryType changes the category kind.
func (r *SQLiteRepository) SetCategoryType(ctx context.Context, id int64, typ core.CategoryType) error {
	return r.updateCategoryField(ctx, id, `UPDATE categories SET type = ? WHERE id = ?`, string(typ))
}

func (r *SQLiteRepository) updateCategoryField(ctx context.Context, id int64, query string, value any) error {
	res, err := r.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update category rows: %w", err)
	}
	if n == 0 {
		return core.NewNotFoundError("category", id)
	}
	return nil
}

// SoftDeleteCategory retires a category as of the given month and
// removes its allocation rows from that month's (and any later
// materialized month's) budget, atomically.
func (r *SQLiteRepository) SoftDeleteCategory(ctx context.Context, id int64, deleted core.Month) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE categories SET deleted_month = ? WHERE id = ?`, deleted.String(), id)
		if err != nil {
			return fmt.Errorf("soft delete category: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("soft delete rows: %w", err)
		}
		if n == 0 {
			return core.NewNotFoundError("category", id)
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM budget_categories
			 WHERE category_id = ?
			   AND budget_id IN (SELECT id FROM budgets WHERE month >= ?)`,
			id, deleted.String())
		if err != nil {
			return fmt.Errorf("remove future allocations: %w", err)
		}
		return nil
	})
}

// HardDeleteCategory removes the category row entirely. Callers must
// have verified there are no dependent rows first.
func (r *SQLiteRepository) HardDeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("hard delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hard delete rows: %w", err)
	}
	if n == 0 {
		return core.NewNotFoundError("category", id)
	}
	return nil
}

// CategoryDependentCounts reports how many budget allocations and
// transaction splits still reference the category.
func (r *SQLiteRepository) CategoryDependentCounts(ctx context.Context, id int64) (budgetRows, splitRows int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM budget_categories WHERE category_id = ?),
			(SELECT COUNT(*) FROM transaction_categories WHERE category_id = ?)`,
		id, id).Scan(&budgetRows, &splitRows)
	if err != nil {
		return 0, 0, fmt.Errorf("category dependent counts: %w", err)
	}
	return budgetRows, splitRows, nil
}

// CategoryHasSplitsOnOrAfter reports whether any transaction split for
// the category is dated on or after the given day.
func (r *SQLiteRepository) CategoryHasSplitsOnOrAfter(ctx context.Context, id int64, from time.Time) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM transaction_categories tc
			JOIN transactions t ON t.id = tc.transaction_id
			WHERE tc.category_id = ? AND t.date >= ?
		)`, id, from.Format(dateLayout)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("category splits on or after: %w", err)
	}
	return exists == 1, nil
}
