package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
)

// Sync states mirrored to the export worker.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

func parseStoredTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t         core.Transaction
		date      string
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.Amount.Cents, &t.Vendor, &t.Description, &date, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored transaction date: %w", err)
	}
	t.Date = d
	t.CreatedAt = parseStoredTimestamp(createdAt)
	return t, nil
}

const transactionColumns = "id, amount_cents, vendor, description, date, created_at"

// CreateTransaction persists a transaction and all of its splits in
// one database transaction.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	var created core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (amount_cents, vendor, description, date) VALUES (?, ?, ?, ?)`,
			in.Amount.Cents, in.Vendor, in.Description, in.Date.Format(dateLayout))
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("transaction insert id: %w", err)
		}
		for _, s := range in.Splits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transaction_categories (transaction_id, category_id, amount_cents) VALUES (?, ?, ?)`,
				id, s.CategoryID, s.Amount.Cents); err != nil {
				return fmt.Errorf("insert split for category %d: %w", s.CategoryID, err)
			}
		}
		created = core.Transaction{
			ID:          id,
			Amount:      in.Amount,
			Vendor:      in.Vendor,
			Description: in.Description,
			Date:        in.Date,
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return created, nil
}

// CreateTransferTransaction persists the zero-sum transaction, its two
// splits and the transfer record atomically.
func (r *SQLiteRepository) CreateTransferTransaction(ctx context.Context, in core.TransferInput) (core.TransactionView, error) {
	var view core.TransactionView
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (amount_cents, vendor, description, date) VALUES (0, ?, '', ?)`,
			core.TransferVendor, in.Date.Format(dateLayout))
		if err != nil {
			return fmt.Errorf("insert transfer transaction: %w", err)
		}
		txID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("transfer transaction id: %w", err)
		}
		splits := []core.Split{
			{TransactionID: txID, CategoryID: in.SourceCategoryID, Amount: in.Amount.Neg()},
			{TransactionID: txID, CategoryID: in.DestinationCategoryID, Amount: in.Amount},
		}
		for i, s := range splits {
			sres, err := tx.ExecContext(ctx,
				`INSERT INTO transaction_categories (transaction_id, category_id, amount_cents) VALUES (?, ?, ?)`,
				s.TransactionID, s.CategoryID, s.Amount.Cents)
			if err != nil {
				return fmt.Errorf("insert transfer split: %w", err)
			}
			if splits[i].ID, err = sres.LastInsertId(); err != nil {
				return fmt.Errorf("transfer split id: %w", err)
			}
		}
		tres, err := tx.ExecContext(ctx,
			`INSERT INTO transfers (transaction_id, source_category_id, destination_category_id, amount_cents)
			 VALUES (?, ?, ?, ?)`,
			txID, in.SourceCategoryID, in.DestinationCategoryID, in.Amount.Cents)
		if err != nil {
			return fmt.Errorf("insert transfer record: %w", err)
		}
		transferID, err := tres.LastInsertId()
		if err != nil {
			return fmt.Errorf("transfer record id: %w", err)
		}
		view = core.TransactionView{
			Transaction: core.Transaction{ID: txID, Vendor: core.TransferVendor, Date: in.Date},
			Splits:      splits,
			Transfer: &core.Transfer{
				ID:                    transferID,
				TransactionID:         txID,
				SourceCategoryID:      in.SourceCategoryID,
				DestinationCategoryID: in.DestinationCategoryID,
				Amount:                in.Amount,
			},
		}
		return nil
	})
	if err != nil {
		return core.TransactionView{}, err
	}
	return view, nil
}

// GetTransaction loads a transaction with its splits and transfer
// record, if any.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.TransactionView, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionView{}, core.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return core.TransactionView{}, fmt.Errorf("get transaction: %w", err)
	}

	splits, err := r.ListSplits(ctx, id)
	if err != nil {
		return core.TransactionView{}, err
	}

	view := core.TransactionView{Transaction: t, Splits: splits}
	var tr core.Transfer
	err = r.db.QueryRowContext(ctx,
		`SELECT id, transaction_id, source_category_id, destination_category_id, amount_cents
		 FROM transfers WHERE transaction_id = ?`, id).
		Scan(&tr.ID, &tr.TransactionID, &tr.SourceCategoryID, &tr.DestinationCategoryID, &tr.Amount.Cents)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// plain transaction
	case err != nil:
		return core.TransactionView{}, fmt.Errorf("get transfer record: %w", err)
	default:
		view.Transfer = &tr
	}
	return view, nil
}

// ListSplits returns a transaction's splits.
func (r *SQLiteRepository) ListSplits(ctx context.Context, transactionID int64) ([]core.Split, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, transaction_id, category_id, amount_cents
		 FROM transaction_categories WHERE transaction_id = ? ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	defer rows.Close()

	var splits []core.Split
	for rows.Next() {
		var s core.Split
		if err := rows.Scan(&s.ID, &s.TransactionID, &s.CategoryID, &s.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

// UpdateTransaction rewrites a transaction's fields and applies a
// reconciled split diff atomically. The row is marked pending again so
// the export worker picks up the new revision.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput, diff core.SplitDiff) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE transactions
			 SET amount_cents = ?, vendor = ?, description = ?, date = ?,
			     version = version + 1, sync_status = ?
			 WHERE id = ?`,
			in.Amount.Cents, in.Vendor, in.Description, in.Date.Format(dateLayout), SyncPending, id)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update transaction rows: %w", err)
		}
		if n == 0 {
			return core.NewNotFoundError("transaction", id)
		}
		for _, s := range diff.ToCreate {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transaction_categories (transaction_id, category_id, amount_cents) VALUES (?, ?, ?)`,
				id, s.CategoryID, s.Amount.Cents); err != nil {
				return fmt.Errorf("insert split for category %d: %w", s.CategoryID, err)
			}
		}
		for _, s := range diff.ToUpdate {
			if _, err := tx.ExecContext(ctx,
				`UPDATE transaction_categories SET amount_cents = ? WHERE id = ?`,
				s.Amount.Cents, s.ID); err != nil {
				return fmt.Errorf("update split %d: %w", s.ID, err)
			}
		}
		for _, s := range diff.ToDelete {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM transaction_categories WHERE id = ?`, s.ID); err != nil {
				return fmt.Errorf("delete split %d: %w", s.ID, err)
			}
		}
		return nil
	})
}

// DeleteTransaction removes a transaction; splits and any transfer
// record cascade.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows: %w", err)
	}
	if n == 0 {
		return core.NewNotFoundError("transaction", id)
	}
	return nil
}

// ListCategorySplits returns one category's transaction slices inside
// [start, next), newest first with creation time as tie-breaker.
// Transfers are skipped unless includeTransfers is set.
func (r *SQLiteRepository) ListCategorySplits(ctx context.Context, categoryID int64, start, next time.Time, includeTransfers bool) ([]core.CategoryTransaction, error) {
	query := `SELECT tc.id, tc.amount_cents, t.date, t.vendor, t.description,
	                 EXISTS (SELECT 1 FROM transfers tr WHERE tr.transaction_id = t.id)
	          FROM transaction_categories tc
	          JOIN transactions t ON t.id = tc.transaction_id
	          WHERE tc.category_id = ? AND t.date >= ? AND t.date < ?`
	if !includeTransfers {
		query += ` AND NOT EXISTS (SELECT 1 FROM transfers tr WHERE tr.transaction_id = t.id)`
	}
	query += ` ORDER BY t.date DESC, t.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query,
		categoryID, start.Format(dateLayout), next.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list category splits: %w", err)
	}
	defer rows.Close()

	var result []core.CategoryTransaction
	for rows.Next() {
		var (
			ct   core.CategoryTransaction
			date string
		)
		if err := rows.Scan(&ct.SplitID, &ct.Amount.Cents, &date, &ct.Vendor, &ct.Description, &ct.IsTransfer); err != nil {
			return nil, fmt.Errorf("scan category split: %w", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("stored split date: %w", err)
		}
		ct.Date = d
		result = append(result, ct)
	}
	return result, rows.Err()
}

// ListTransactionsInWindow returns every transaction dated inside
// [start, next), newest first with creation time as tie-breaker, each
// labelled with the categories its splits touch.
func (r *SQLiteRepository) ListTransactionsInWindow(ctx context.Context, start, next time.Time) ([]core.MonthTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.amount_cents, t.vendor, t.description, t.date, t.created_at,
		        c.id, c.name
		 FROM transactions t
		 JOIN transaction_categories tc ON tc.transaction_id = t.id
		 JOIN categories c ON c.id = tc.category_id
		 WHERE t.date >= ? AND t.date < ?
		 ORDER BY t.date DESC, t.created_at DESC, t.id DESC, tc.id ASC`,
		start.Format(dateLayout), next.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions in window: %w", err)
	}
	defer rows.Close()

	var (
		result []core.MonthTransaction
		last   *core.MonthTransaction
	)
	for rows.Next() {
		var (
			t         core.Transaction
			date      string
			createdAt string
			ref       core.CategoryRef
		)
		if err := rows.Scan(&t.ID, &t.Amount.Cents, &t.Vendor, &t.Description, &date, &createdAt, &ref.ID, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan month transaction: %w", err)
		}
		if last == nil || last.ID != t.ID {
			d, err := time.Parse(dateLayout, date)
			if err != nil {
				return nil, fmt.Errorf("stored transaction date: %w", err)
			}
			t.Date = d
			t.CreatedAt = parseStoredTimestamp(createdAt)
			result = append(result, core.MonthTransaction{Transaction: t})
			last = &result[len(result)-1]
		}
		last.Categories = append(last.Categories, ref)
	}
	return result, rows.Err()
}

// ListVendorsSince returns the distinct vendors of non-transfer
// transactions dated on or after since, alphabetically.
func (r *SQLiteRepository) ListVendorsSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT t.vendor
		 FROM transactions t
		 WHERE t.date >= ?
		   AND NOT EXISTS (SELECT 1 FROM transfers tr WHERE tr.transaction_id = t.id)
		 ORDER BY t.vendor ASC`,
		since.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

// PendingSyncTransaction is the minimal row handed to the export
// worker's sweep.
type PendingSyncTransaction struct {
	ID      int64
	Version int64
}

// ListPendingSync returns transactions not yet mirrored to the report
// spreadsheet, oldest first.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, version FROM transactions WHERE sync_status = ? ORDER BY id ASC LIMIT ?`,
		SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync: %w", err)
	}
	defer rows.Close()

	var pending []PendingSyncTransaction
	for rows.Next() {
		var p PendingSyncTransaction
		if err := rows.Scan(&p.ID, &p.Version); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkSynced records a successful export of the transaction.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, SyncDone)
}

// MarkSyncError records a failed export attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, SyncError)
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set sync status rows: %w", err)
	}
	if n == 0 {
		return core.NewNotFoundError("transaction", id)
	}
	return nil
}
