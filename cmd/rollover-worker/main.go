package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("rollover-worker")

	logger.Info("Starting rollover-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	calculator := services.NewBalanceCalculator(repo)
	budgets := services.NewBudgetService(repo, calculator, cache.NewLRUCache[core.Month](8, 5*time.Minute))

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Rollover worker configured",
		"interval", cfg.RolloverInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	rollover := worker.NewRolloverWorker(budgets)
	if err := rollover.Run(ctx, cfg.RolloverInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Rollover worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Rollover worker shutdown complete")
}
