package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/core"
	apphttp "bilancio/internal/http"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("bilancio")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Cache for the oldest-budget lookup; the manager sweeps expired
	// entries in the background.
	cacheManager := cache.NewManager()
	firstMonth := cache.NewLRUCache[core.Month](16, 5*time.Minute)
	cacheManager.Register(firstMonth)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	calculator := services.NewBalanceCalculator(repo)
	budgets := services.NewBudgetService(repo, calculator, firstMonth)
	categories := services.NewCategoryService(repo, budgets, calculator)

	// Transaction changes are announced over AMQP so the worker can
	// export them. Without a broker the pipeline degrades to the
	// pending-sync sweep.
	var notifier services.Notifier
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without sync notifications", "error", err)
		} else {
			defer amqpClient.Close()
			notifier = amqp.NewNotifier(amqpClient)
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - transactions will not sync to Google Sheets")
	}
	transactions := services.NewTransactionService(repo, categories, calculator, notifier)

	srv := apphttp.NewServer(":"+cfg.Port, budgets, categories, transactions)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := cli.SignalContext()
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting bilancio server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
