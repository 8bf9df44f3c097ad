package worker

import (
	"context"
	"log/slog"
	"time"

	"bilancio/internal/services"
)

// RolloverWorker materializes the current month's budget on a timer,
// so the first viewer of a new month never pays the clone latency and
// the budget exists even if nobody opens the app for a while.
type RolloverWorker struct {
	budgets *services.BudgetService
}

func NewRolloverWorker(budgets *services.BudgetService) *RolloverWorker {
	return &RolloverWorker{budgets: budgets}
}

// EnsureCurrentMonth makes sure a budget row exists for today's month.
func (w *RolloverWorker) EnsureCurrentMonth(ctx context.Context) error {
	month := w.budgets.CurrentMonth()
	view, err := w.budgets.BudgetForMonth(ctx, month)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Current month budget in place",
		"month", month.String(),
		"categories", len(view.Categories))
	return nil
}

// Run checks once immediately, then on every tick.
func (w *RolloverWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.EnsureCurrentMonth(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial rollover check failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.EnsureCurrentMonth(ctx); err != nil {
				slog.ErrorContext(ctx, "Rollover check failed", "error", err)
			}
		}
	}
}
