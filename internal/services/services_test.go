package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changed []int64
	deleted []int64
}

func (n *recordingNotifier) TransactionChanged(_ context.Context, id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, id)
}

func (n *recordingNotifier) TransactionDeleted(_ context.Context, id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, id)
}

type fixture struct {
	repo         *storage.SQLiteRepository
	budgets      *BudgetService
	categories   *CategoryService
	transactions *TransactionService
	calculator   *BalanceCalculator
	notifier     *recordingNotifier
}

// newFixture wires the full service graph against a throwaway
// database, with the clock pinned to the first day of now.
func newFixture(t *testing.T, now string) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bilancio.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	calc := NewBalanceCalculator(repo)
	budgets := NewBudgetService(repo, calc, cache.NewLRUCache[core.Month](8, time.Minute))
	budgets.WithClock(func() time.Time { return month(t, now).Start() })
	cats := NewCategoryService(repo, budgets, calc)
	notifier := &recordingNotifier{}
	txns := NewTransactionService(repo, cats, calc, notifier)
	return &fixture{
		repo:         repo,
		budgets:      budgets,
		categories:   cats,
		transactions: txns,
		calculator:   calc,
		notifier:     notifier,
	}
}

func month(t *testing.T, s string) core.Month {
	t.Helper()
	m, err := core.ParseMonth(s)
	if err != nil {
		t.Fatalf("parse month %q: %v", s, err)
	}
	return m
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func cents(n int64) core.Money { return core.Money{Cents: n} }

func (f *fixture) category(t *testing.T, name string, typ core.CategoryType, created string) core.Category {
	t.Helper()
	cat, err := f.categories.Create(context.Background(), name, typ, month(t, created))
	if err != nil {
		t.Fatalf("create category %q: %v", name, err)
	}
	return cat
}

func (f *fixture) spend(t *testing.T, categoryID int64, amount int64, date string) core.Transaction {
	t.Helper()
	txn, err := f.transactions.Create(context.Background(), core.TransactionInput{
		Amount: cents(amount),
		Vendor: "Test Vendor",
		Date:   day(t, date),
		Splits: []core.SplitInput{{CategoryID: categoryID, Amount: cents(amount)}},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return txn
}

func (f *fixture) allocate(t *testing.T, m string, categoryID int64, amount int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.budgets.BudgetForMonth(ctx, month(t, m)); err != nil {
		t.Fatalf("materialize %s: %v", m, err)
	}
	if err := f.budgets.SetBudgetedAmount(ctx, month(t, m), categoryID, cents(amount)); err != nil {
		t.Fatalf("allocate %d to category %d in %s: %v", amount, categoryID, m, err)
	}
}

func (f *fixture) balanceOf(t *testing.T, m string, categoryID int64) core.BudgetCategoryView {
	t.Helper()
	view, err := f.budgets.BudgetForMonth(context.Background(), month(t, m))
	if err != nil {
		t.Fatalf("budget for %s: %v", m, err)
	}
	for _, row := range view.Categories {
		if row.CategoryID == categoryID {
			return row
		}
	}
	t.Fatalf("category %d not in %s budget", categoryID, m)
	return core.BudgetCategoryView{}
}

func TestFundBalanceAccumulatesAcrossMonths(t *testing.T) {
	f := newFixture(t, "2026-01")
	ctx := context.Background()

	fund := f.category(t, "Car Repairs", core.Accumulating, "2026-01")
	regular := f.category(t, "Groceries", core.NonAccumulating, "2026-01")

	f.allocate(t, "2026-01", fund.ID, 1000)
	f.allocate(t, "2026-01", regular.ID, 1000)
	f.spend(t, fund.ID, -500, "2026-01-15")
	f.spend(t, regular.ID, -500, "2026-01-15")

	f.budgets.WithClock(func() time.Time { return month(t, "2026-02").Start() })
	f.allocate(t, "2026-02", fund.ID, 1000)
	f.allocate(t, "2026-02", regular.ID, 1000)

	// The fund carries January's leftover into February; the regular
	// category resets.
	fundRow := f.balanceOf(t, "2026-02", fund.ID)
	if got := fundRow.Balance.Cents; got != 1500 {
		t.Errorf("fund balance = %d, want 1500", got)
	}
	regularRow := f.balanceOf(t, "2026-02", regular.ID)
	if got := regularRow.Balance.Cents; got != 1000 {
		t.Errorf("regular balance = %d, want 1000", got)
	}

	// Spent is month-scoped for both types.
	if fundRow.Spent.Cents != 0 || regularRow.Spent.Cents != 0 {
		t.Errorf("february spent = %d/%d, want 0/0", fundRow.Spent.Cents, regularRow.Spent.Cents)
	}

	janFund, err := f.calculator.Spent(ctx, month(t, "2026-01"), fund)
	if err != nil {
		t.Fatalf("spent: %v", err)
	}
	if janFund.Cents != -500 {
		t.Errorf("january fund spent = %d, want -500", janFund.Cents)
	}
}

func TestStartingVersusCurrentBalance(t *testing.T) {
	f := newFixture(t, "2026-01")
	ctx := context.Background()

	fund := f.category(t, "Vacation", core.Savings, "2026-01")
	f.allocate(t, "2026-01", fund.ID, 10000)
	f.budgets.WithClock(func() time.Time { return month(t, "2026-02").Start() })
	f.allocate(t, "2026-02", fund.ID, 0)
	f.budgets.WithClock(func() time.Time { return month(t, "2026-03").Start() })
	f.allocate(t, "2026-03", fund.ID, 0)
	f.spend(t, fund.ID, -3000, "2026-03-10")

	starting, err := f.calculator.StartingBalance(ctx, month(t, "2026-03"), fund)
	if err != nil {
		t.Fatalf("starting balance: %v", err)
	}
	if starting.Cents != 10000 {
		t.Errorf("starting balance = %d, want 10000", starting.Cents)
	}
	current, err := f.calculator.CurrentBalance(ctx, month(t, "2026-03"), fund)
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if current.Cents != 7000 {
		t.Errorf("current balance = %d, want 7000", current.Cents)
	}
}

func TestBudgetContinuity(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	t.Run("fresh install materializes the current month", func(t *testing.T) {
		view, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-06"))
		if err != nil {
			t.Fatalf("budget for current month: %v", err)
		}
		if view.Budget.Month != month(t, "2026-06") || view.Budget.Income.Cents != 0 {
			t.Fatalf("unexpected initial budget: %+v", view.Budget)
		}
	})

	t.Run("future months redirect to the current one", func(t *testing.T) {
		_, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-07"))
		var redirect *core.RedirectError
		if !errors.As(err, &redirect) {
			t.Fatalf("expected redirect, got %v", err)
		}
		if redirect.Month != month(t, "2026-06") {
			t.Errorf("redirect to %s, want 2026-06", redirect.Month)
		}
	})

	t.Run("months before the oldest budget redirect to it", func(t *testing.T) {
		_, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-01"))
		var redirect *core.RedirectError
		if !errors.As(err, &redirect) {
			t.Fatalf("expected redirect, got %v", err)
		}
		if redirect.Month != month(t, "2026-06") {
			t.Errorf("redirect to %s, want 2026-06", redirect.Month)
		}
	})
}

func TestBudgetCloneCopiesAllocationsAndSkipsRetired(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	keep := f.category(t, "Rent", core.Fixed, "2026-01")
	retired := f.category(t, "Gym", core.NonAccumulating, "2026-01")

	// June budget with income and allocations for both categories.
	f.allocate(t, "2026-06", keep.ID, 90000)
	f.allocate(t, "2026-06", retired.ID, 4000)
	if err := f.budgets.SetIncome(ctx, month(t, "2026-06"), cents(250000)); err != nil {
		t.Fatalf("set income: %v", err)
	}

	// Spending makes the category non-deletable, so a later delete
	// only retires it.
	f.spend(t, retired.ID, -4000, "2026-06-20")
	if err := f.categories.Delete(ctx, retired.ID, month(t, "2026-07")); err != nil {
		t.Fatalf("retire category: %v", err)
	}

	// Move the clock forward and view August: it clones from June,
	// the latest prior budget, carrying income and surviving
	// allocations.
	f.budgets.WithClock(func() time.Time { return month(t, "2026-08").Start() })
	view, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-08"))
	if err != nil {
		t.Fatalf("budget for 2026-08: %v", err)
	}
	if view.Budget.Income.Cents != 250000 {
		t.Errorf("cloned income = %d, want 250000", view.Budget.Income.Cents)
	}
	for _, row := range view.Categories {
		if row.CategoryID == retired.ID {
			t.Errorf("retired category %q survived the clone", row.Category.Name)
		}
		if row.CategoryID == keep.ID && row.Budgeted.Cents != 90000 {
			t.Errorf("cloned allocation = %d, want 90000", row.Budgeted.Cents)
		}
	}

	// Re-requesting the month must not clone again.
	again, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-08"))
	if err != nil {
		t.Fatalf("second view: %v", err)
	}
	if again.Budget.ID != view.Budget.ID {
		t.Errorf("second view returned a different budget: %d vs %d", again.Budget.ID, view.Budget.ID)
	}
}

func TestMonthsListsOldestThroughCurrent(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	if _, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-06")); err != nil {
		t.Fatalf("materialize current: %v", err)
	}
	// Backdate an earlier budget directly; Months must bridge the gap
	// even though May was never materialized.
	if _, _, err := f.repo.CreateBudget(ctx, month(t, "2026-04"), 0, nil); err != nil {
		t.Fatalf("backdate budget: %v", err)
	}
	f.budgets = NewBudgetService(f.repo, f.calculator, cache.NewLRUCache[core.Month](8, time.Minute)).
		WithClock(func() time.Time { return month(t, "2026-06").Start() })

	months, err := f.budgets.Months(ctx)
	if err != nil {
		t.Fatalf("months: %v", err)
	}
	want := []string{"2026-06", "2026-05", "2026-04"}
	if len(months) != len(want) {
		t.Fatalf("got %d months, want %d", len(months), len(want))
	}
	for i, m := range months {
		if m.String() != want[i] {
			t.Errorf("months[%d] = %s, want %s", i, m, want[i])
		}
	}
}

func TestCategoryDeleteGuards(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	// Materialize June so category creation attaches its zero
	// allocation.
	if _, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-06")); err != nil {
		t.Fatalf("materialize june: %v", err)
	}

	unused := f.category(t, "Never Used", core.NonAccumulating, "2026-06")
	used := f.category(t, "Dining", core.NonAccumulating, "2026-06")
	f.spend(t, used.ID, -1200, "2026-06-10")

	deletable, err := f.categories.IsDeletable(ctx, unused.ID)
	if err != nil {
		t.Fatalf("is deletable: %v", err)
	}
	// Creation attached a zero allocation to June's budget, so even
	// the unused category is only soft-deletable via its allocation.
	if deletable {
		t.Error("category with a budget allocation reported deletable")
	}

	// Retiring as of June fails: June has a split for the category.
	err = f.categories.Delete(ctx, used.ID, month(t, "2026-06"))
	var integrity *core.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}

	// Retiring from July succeeds and blocks later-dated splits.
	if err := f.categories.Delete(ctx, used.ID, month(t, "2026-07")); err != nil {
		t.Fatalf("retire from july: %v", err)
	}
	f.budgets.WithClock(func() time.Time { return month(t, "2026-07").Start() })
	_, err = f.transactions.Create(ctx, core.TransactionInput{
		Amount: cents(-100),
		Vendor: "Late",
		Date:   day(t, "2026-07-01"),
		Splits: []core.SplitInput{{CategoryID: used.ID, Amount: cents(-100)}},
	})
	if !errors.As(err, &integrity) {
		t.Fatalf("expected integrity error for retired category, got %v", err)
	}
}

func TestCategoryCannotRetireBeforeCreation(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	if _, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-06")); err != nil {
		t.Fatalf("materialize june: %v", err)
	}
	// The June allocation row makes the category soft-deletable only.
	cat := f.category(t, "Gym", core.NonAccumulating, "2026-06")

	err := f.categories.Delete(ctx, cat.ID, month(t, "2026-01"))
	var integrity *core.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected integrity error retiring before creation, got %v", err)
	}

	reloaded, err := f.repo.GetCategory(ctx, cat.ID)
	if err != nil {
		t.Fatalf("reload category: %v", err)
	}
	if reloaded.DeletedMonth != nil {
		t.Errorf("deletedMonth = %s, want unset", reloaded.DeletedMonth)
	}
	if err := reloaded.Validate(); err != nil {
		t.Errorf("category no longer valid: %v", err)
	}

	// Retiring from the creation month itself is still allowed.
	if err := f.categories.Delete(ctx, cat.ID, month(t, "2026-06")); err != nil {
		t.Fatalf("retire from creation month: %v", err)
	}
}

func TestTransactionDateOutsideLifecycleRejected(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	cat := f.category(t, "New Hobby", core.NonAccumulating, "2026-06")
	_, err := f.transactions.Create(ctx, core.TransactionInput{
		Amount: cents(-500),
		Vendor: "Too Early",
		Date:   day(t, "2026-05-31"),
		Splits: []core.SplitInput{{CategoryID: cat.ID, Amount: cents(-500)}},
	})
	var integrity *core.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestTransferMovesBalanceWithoutSpending(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	src := f.category(t, "Savings", core.Savings, "2026-06")
	dst := f.category(t, "Emergencies", core.Savings, "2026-06")
	f.allocate(t, "2026-06", src.ID, 10000)
	f.allocate(t, "2026-06", dst.ID, 0)

	view, err := f.transactions.Transfer(ctx, core.TransferInput{
		Amount:                cents(2500),
		SourceCategoryID:      src.ID,
		DestinationCategoryID: dst.ID,
		Date:                  day(t, "2026-06-15"),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if view.Transaction.Amount.Cents != 0 {
		t.Errorf("transfer transaction amount = %d, want 0", view.Transaction.Amount.Cents)
	}
	if view.Transfer == nil || view.Transfer.Amount.Cents != 2500 {
		t.Fatalf("transfer record missing or wrong: %+v", view.Transfer)
	}

	srcRow := f.balanceOf(t, "2026-06", src.ID)
	dstRow := f.balanceOf(t, "2026-06", dst.ID)
	if srcRow.Balance.Cents != 7500 {
		t.Errorf("source balance = %d, want 7500", srcRow.Balance.Cents)
	}
	if dstRow.Balance.Cents != 2500 {
		t.Errorf("destination balance = %d, want 2500", dstRow.Balance.Cents)
	}
}

func TestSetCategoryBalance(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	fund := f.category(t, "Buffer", core.Accumulating, "2026-06")
	f.allocate(t, "2026-06", fund.ID, 4200)

	delta, err := f.transactions.SetCategoryBalance(ctx, fund.ID, month(t, "2026-06"), cents(5000))
	if err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if delta.Cents != 800 {
		t.Errorf("delta = %d, want 800", delta.Cents)
	}
	row := f.balanceOf(t, "2026-06", fund.ID)
	if row.Balance.Cents != 5000 {
		t.Errorf("balance after adjustment = %d, want 5000", row.Balance.Cents)
	}

	// Matching target is a no-op.
	delta, err = f.transactions.SetCategoryBalance(ctx, fund.ID, month(t, "2026-06"), cents(5000))
	if err != nil {
		t.Fatalf("second set balance: %v", err)
	}
	if !delta.IsZero() {
		t.Errorf("second delta = %d, want 0", delta.Cents)
	}

	// The adjustment lands on the first of the month under the
	// reserved vendor.
	splits, err := f.repo.ListCategorySplits(ctx, fund.ID, month(t, "2026-06").Start(), month(t, "2026-06").NextStart(), true)
	if err != nil {
		t.Fatalf("list splits: %v", err)
	}
	if len(splits) != 1 {
		t.Fatalf("got %d splits, want 1", len(splits))
	}
	if splits[0].Vendor != core.AdjustmentVendor || !splits[0].Date.Equal(month(t, "2026-06").Start()) {
		t.Errorf("unexpected adjustment split: %+v", splits[0])
	}
}

func TestUpdateTransactionReconcilesSplits(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	a := f.category(t, "Groceries", core.NonAccumulating, "2026-06")
	b := f.category(t, "Household", core.NonAccumulating, "2026-06")
	c := f.category(t, "Pets", core.NonAccumulating, "2026-06")

	txn, err := f.transactions.Create(ctx, core.TransactionInput{
		Amount: cents(-3000),
		Vendor: "Supermarket",
		Date:   day(t, "2026-06-05"),
		Splits: []core.SplitInput{
			{CategoryID: a.ID, Amount: cents(-2000)},
			{CategoryID: b.ID, Amount: cents(-1000)},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Keep a with a new amount, drop b, add c.
	err = f.transactions.Update(ctx, txn.ID, core.TransactionInput{
		Amount: cents(-2500),
		Vendor: "Supermarket",
		Date:   day(t, "2026-06-05"),
		Splits: []core.SplitInput{
			{CategoryID: a.ID, Amount: cents(-1500)},
			{CategoryID: c.ID, Amount: cents(-1000)},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	view, err := f.transactions.Get(ctx, txn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Amount.Cents != -2500 {
		t.Errorf("amount = %d, want -2500", view.Amount.Cents)
	}
	got := map[int64]int64{}
	for _, s := range view.Splits {
		got[s.CategoryID] = s.Amount.Cents
	}
	want := map[int64]int64{a.ID: -1500, c.ID: -1000}
	if len(got) != len(want) {
		t.Fatalf("splits = %v, want %v", got, want)
	}
	for id, amt := range want {
		if got[id] != amt {
			t.Errorf("split for %d = %d, want %d", id, got[id], amt)
		}
	}
}

func TestDeleteNotifiesPipeline(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	cat := f.category(t, "Misc", core.NonAccumulating, "2026-06")
	txn := f.spend(t, cat.ID, -100, "2026-06-01")

	if err := f.transactions.Delete(ctx, txn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.transactions.Get(ctx, txn.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if len(f.notifier.deleted) != 1 || f.notifier.deleted[0] != txn.ID {
		t.Errorf("delete notifications = %v, want [%d]", f.notifier.deleted, txn.ID)
	}
	if len(f.notifier.changed) == 0 {
		t.Error("expected change notification from create")
	}
}

func TestConcurrentCloneProducesOneBudget(t *testing.T) {
	f := newFixture(t, "2026-01")
	ctx := context.Background()

	if _, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-01")); err != nil {
		t.Fatalf("materialize january: %v", err)
	}
	if err := f.budgets.SetIncome(ctx, month(t, "2026-01"), cents(300000)); err != nil {
		t.Fatalf("set income: %v", err)
	}

	f.budgets.WithClock(func() time.Time { return month(t, "2026-02").Start() })

	// The read-then-insert clone sequence is not atomic; the UNIQUE
	// month constraint must collapse racing clones into one row.
	const racers = 8
	ids := make([]int64, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := f.budgets.BudgetForMonth(ctx, month(t, "2026-02"))
			if err != nil {
				t.Errorf("racer %d: %v", i, err)
				return
			}
			ids[i] = view.Budget.ID
		}(i)
	}
	wg.Wait()

	winner, err := f.repo.GetBudgetByMonth(ctx, month(t, "2026-02"))
	if err != nil {
		t.Fatalf("reload february: %v", err)
	}
	for i, id := range ids {
		if id != winner.ID {
			t.Errorf("racer %d saw budget %d, want %d", i, id, winner.ID)
		}
	}
	if winner.Income.Cents != 300000 {
		t.Errorf("cloned income = %d, want 300000", winner.Income.Cents)
	}
}

func TestFixedCategoryCannotChangeType(t *testing.T) {
	f := newFixture(t, "2026-06")
	ctx := context.Background()

	rent := f.category(t, "Rent", core.Fixed, "2026-06")
	err := f.categories.SetType(ctx, rent.ID, core.Accumulating)
	var integrity *core.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("SetType on fixed category = %v, want IntegrityError", err)
	}

	groceries := f.category(t, "Groceries", core.NonAccumulating, "2026-06")
	if err := f.categories.SetType(ctx, groceries.ID, core.Savings); err != nil {
		t.Fatalf("SetType on regular category: %v", err)
	}
}
