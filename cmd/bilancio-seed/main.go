// Command bilancio-seed populates an empty database with a small demo
// dataset: a budget for the current month, a few envelope categories
// with sample spending, and two funds with starting balances.
package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

type seedCategory struct {
	name      string
	typ       core.CategoryType
	allocated int64 // cents
	balance   int64 // cents, funds only
}

var seedCategories = []seedCategory{
	{name: "Groceries", typ: core.NonAccumulating, allocated: 60000},
	{name: "Utilities", typ: core.NonAccumulating, allocated: 30000},
	{name: "Entertainment", typ: core.NonAccumulating, allocated: 20000},
	{name: "Emergency Fund", typ: core.Accumulating, balance: 200000},
	{name: "Vacation Fund", typ: core.Savings, balance: 100000},
}

type seedTransaction struct {
	category    string
	amount      int64 // cents
	day         int
	vendor      string
	description string
}

var seedTransactions = []seedTransaction{
	{category: "Groceries", amount: -15000, day: 5, vendor: "Supermarket", description: "Weekly groceries"},
	{category: "Utilities", amount: -8000, day: 10, vendor: "Electric Company", description: "Monthly bill"},
	{category: "Emergency Fund", amount: -20000, day: 15, vendor: "Car Repair", description: "Unexpected repair"},
	{category: "Vacation Fund", amount: -50000, day: 20, vendor: "Travel Agency", description: "Vacation deposit"},
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("bilancio-seed")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx := context.Background()

	// Refuse to seed on top of real data.
	if _, found, err := repo.FirstBudgetMonth(ctx); err != nil {
		logger.Error("Failed to inspect database", "error", err)
		os.Exit(1)
	} else if found {
		logger.Error("Database already contains budgets, refusing to seed", "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	calculator := services.NewBalanceCalculator(repo)
	budgets := services.NewBudgetService(repo, calculator, cache.NewLRUCache[core.Month](8, time.Minute))
	categories := services.NewCategoryService(repo, budgets, calculator)
	transactions := services.NewTransactionService(repo, categories, calculator, nil)

	month := budgets.CurrentMonth()
	if _, err := budgets.BudgetForMonth(ctx, month); err != nil {
		logger.Error("Failed to materialize current month", "error", err)
		os.Exit(1)
	}
	if err := budgets.SetIncome(ctx, month, core.Money{Cents: 500000}); err != nil {
		logger.Error("Failed to set income", "error", err)
		os.Exit(1)
	}

	ids := seedCategoriesAndBalances(ctx, logger, month, budgets, categories, transactions)

	for _, st := range seedTransactions {
		date := month.Start().AddDate(0, 0, st.day-1)
		_, err := transactions.Create(ctx, core.TransactionInput{
			Amount:      core.Money{Cents: st.amount},
			Vendor:      st.vendor,
			Description: st.description,
			Date:        date,
			Splits:      []core.SplitInput{{CategoryID: ids[st.category], Amount: core.Money{Cents: st.amount}}},
		})
		if err != nil {
			logger.Error("Failed to create sample transaction", "vendor", st.vendor, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Seed complete",
		"month", month.String(),
		"categories", len(seedCategories),
		"transactions", len(seedTransactions))
}

func seedCategoriesAndBalances(
	ctx context.Context,
	logger *applog.Logger,
	month core.Month,
	budgets *services.BudgetService,
	categories *services.CategoryService,
	transactions *services.TransactionService,
) map[string]int64 {
	ids := make(map[string]int64, len(seedCategories))
	for _, sc := range seedCategories {
		cat, err := categories.Create(ctx, sc.name, sc.typ, month)
		if err != nil {
			logger.Error("Failed to create category", "category", sc.name, "error", err)
			os.Exit(1)
		}
		ids[sc.name] = cat.ID

		if sc.allocated > 0 {
			if err := budgets.SetBudgetedAmount(ctx, month, cat.ID, core.Money{Cents: sc.allocated}); err != nil {
				logger.Error("Failed to allocate category", "category", sc.name, "error", err)
				os.Exit(1)
			}
		}
		if sc.balance > 0 {
			if _, err := transactions.SetCategoryBalance(ctx, cat.ID, month, core.Money{Cents: sc.balance}); err != nil {
				logger.Error("Failed to set fund balance", "category", sc.name, "error", err)
				os.Exit(1)
			}
		}
	}
	return ids
}
