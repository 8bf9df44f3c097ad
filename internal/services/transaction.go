package services

import (
	"context"
	"log/slog"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// Notifier is how the writer tells the export pipeline about changes.
// A nil Notifier disables notifications; the pending-sync sweep still
// picks the rows up eventually.
type Notifier interface {
	TransactionChanged(ctx context.Context, id int64)
	TransactionDeleted(ctx context.Context, id int64)
}

// TransactionService is the single write path for transactions,
// transfers and balance adjustments. Every split is checked against
// its category's lifecycle before anything hits storage.
type TransactionService struct {
	repo       *storage.SQLiteRepository
	categories *CategoryService
	calculator *BalanceCalculator
	notifier   Notifier
	now        func() time.Time
}

func NewTransactionService(repo *storage.SQLiteRepository, categories *CategoryService, calculator *BalanceCalculator, notifier Notifier) *TransactionService {
	return &TransactionService{repo: repo, categories: categories, calculator: calculator, notifier: notifier, now: time.Now}
}

// WithClock replaces the current-time source, which anchors the
// recent-vendors window.
func (s *TransactionService) WithClock(now func() time.Time) *TransactionService {
	s.now = now
	return s
}

func (s *TransactionService) notifyChanged(ctx context.Context, id int64) {
	if s.notifier != nil {
		s.notifier.TransactionChanged(ctx, id)
	}
}

func (s *TransactionService) notifyDeleted(ctx context.Context, id int64) {
	if s.notifier != nil {
		s.notifier.TransactionDeleted(ctx, id)
	}
}

// Create validates and records a transaction with its splits.
func (s *TransactionService) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	for _, id := range in.CategoryIDs() {
		if _, err := s.categories.ValidateTransactionDate(ctx, id, in.Date); err != nil {
			return core.Transaction{}, err
		}
	}
	txn, err := s.repo.CreateTransaction(ctx, in)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Created transaction",
		"transaction_id", txn.ID, "vendor", txn.Vendor, "amount", txn.Amount.String())
	s.notifyChanged(ctx, txn.ID)
	return txn, nil
}

// Update replaces a transaction's fields and reconciles its splits:
// splits for categories present in both old and new input are updated
// in place, new categories get new rows, absent ones are removed.
func (s *TransactionService) Update(ctx context.Context, id int64, in core.TransactionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	for _, catID := range in.CategoryIDs() {
		if _, err := s.categories.ValidateTransactionDate(ctx, catID, in.Date); err != nil {
			return err
		}
	}
	existing, err := s.repo.ListSplits(ctx, id)
	if err != nil {
		return err
	}
	diff := core.ReconcileSplits(existing, in.Splits)
	if err := s.repo.UpdateTransaction(ctx, id, in, diff); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Updated transaction", "transaction_id", id,
		"splits_created", len(diff.ToCreate), "splits_updated", len(diff.ToUpdate), "splits_deleted", len(diff.ToDelete))
	s.notifyChanged(ctx, id)
	return nil
}

// Delete removes a transaction with its splits and any transfer
// record.
func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetTransaction(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Deleted transaction", "transaction_id", id)
	s.notifyDeleted(ctx, id)
	return nil
}

// Get returns a transaction with its splits and transfer info.
func (s *TransactionService) Get(ctx context.Context, id int64) (core.TransactionView, error) {
	return s.repo.GetTransaction(ctx, id)
}

// ListForMonth returns the month's transactions, newest first, each
// labelled with the categories its splits touch.
func (s *TransactionService) ListForMonth(ctx context.Context, month core.Month) ([]core.MonthTransaction, error) {
	return s.repo.ListTransactionsInWindow(ctx, month.Start(), month.NextStart())
}

// vendorLookbackMonths bounds the vendor autocomplete window.
const vendorLookbackMonths = 3

// RecentVendors returns the distinct vendors used in the lookback
// window, transfers excluded, alphabetically.
func (s *TransactionService) RecentVendors(ctx context.Context) ([]string, error) {
	since := s.now().AddDate(0, -vendorLookbackMonths, 0)
	return s.repo.ListVendorsSince(ctx, since)
}

// Transfer moves money between two categories without touching the
// overall spend: a zero-amount transaction whose two splits cancel
// out, plus a transfer record carrying the positive display amount.
func (s *TransactionService) Transfer(ctx context.Context, in core.TransferInput) (core.TransactionView, error) {
	if err := in.Validate(); err != nil {
		return core.TransactionView{}, err
	}
	from, err := s.categories.ValidateTransactionDate(ctx, in.SourceCategoryID, in.Date)
	if err != nil {
		return core.TransactionView{}, err
	}
	to, err := s.categories.ValidateTransactionDate(ctx, in.DestinationCategoryID, in.Date)
	if err != nil {
		return core.TransactionView{}, err
	}
	view, err := s.repo.CreateTransferTransaction(ctx, in)
	if err != nil {
		return core.TransactionView{}, err
	}
	slog.InfoContext(ctx, "Created transfer",
		"transaction_id", view.Transaction.ID,
		"from", from.Name, "to", to.Name, "amount", in.Amount.String())
	s.notifyChanged(ctx, view.Transaction.ID)
	return view, nil
}

// SetCategoryBalance adjusts a category so its balance for the month
// equals target. The delta lands as a single-split transaction dated
// at the start of the month, so it never disturbs another month's
// figures. A zero delta writes nothing.
func (s *TransactionService) SetCategoryBalance(ctx context.Context, categoryID int64, month core.Month, target core.Money) (core.Money, error) {
	cat, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return core.Money{}, err
	}
	if !cat.LiveIn(month) {
		return core.Money{}, core.NewIntegrityError("category %q is not active in %s", cat.Name, month)
	}
	current, err := s.calculator.CurrentBalance(ctx, month, cat)
	if err != nil {
		return core.Money{}, err
	}
	delta := target.Add(current.Neg())
	if delta.IsZero() {
		return core.Money{}, nil
	}

	in := core.TransactionInput{
		Amount: delta,
		Vendor: core.AdjustmentVendor,
		Date:   month.Start(),
		Splits: []core.SplitInput{{CategoryID: categoryID, Amount: delta}},
	}
	txn, err := s.repo.CreateTransaction(ctx, in)
	if err != nil {
		return core.Money{}, err
	}
	slog.InfoContext(ctx, "Adjusted category balance",
		"category", cat.Name, "month", month.String(), "delta", delta.String())
	s.notifyChanged(ctx, txn.ID)
	return delta, nil
}
