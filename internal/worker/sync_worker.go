// Package worker holds the background processes: the Google Sheets
// export worker and the month rollover worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/sheets"
	"bilancio/internal/storage"
)

// SyncWorker mirrors transactions into a spreadsheet. It is driven two
// ways: AMQP messages for low latency, and a periodic sweep over rows
// still marked pending, which recovers anything the broker lost.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	exporter  sheets.TransactionExporter
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, exporter sheets.TransactionExporter, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleMessage processes a single sync message from AMQP.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	if msg.Kind == amqp.KindDelete {
		if err := w.exporter.Delete(ctx, msg.ID); err != nil {
			return fmt.Errorf("delete transaction %d from export: %w", msg.ID, err)
		}
		slog.InfoContext(ctx, "Removed transaction from export", "transaction_id", msg.ID)
		return nil
	}
	return w.syncTransaction(ctx, msg.ID)
}

// syncTransaction reads the current state of the transaction and
// exports it. A transaction deleted between message and processing is
// removed from the export instead.
func (w *SyncWorker) syncTransaction(ctx context.Context, id int64) error {
	view, err := w.storage.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		slog.InfoContext(ctx, "Transaction gone before export, removing", "transaction_id", id)
		return w.exporter.Delete(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", id, err)
	}

	ids := make([]int64, 0, len(view.Splits))
	for _, split := range view.Splits {
		ids = append(ids, split.CategoryID)
	}
	categories, err := w.storage.GetCategoriesByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve categories for transaction %d: %w", id, err)
	}

	ref, err := w.exporter.Upsert(ctx, sheets.BuildExportRow(view, categories))
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "transaction_id", id, "error", markErr)
		}
		return fmt.Errorf("export transaction %d: %w", id, err)
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		// The export itself succeeded; the row stays pending and will
		// be retried by the sweep.
		slog.ErrorContext(ctx, "Failed to mark as synced", "transaction_id", id, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"transaction_id", id,
		"sheets_ref", ref,
		"vendor", view.Vendor,
		"amount_cents", view.Amount.Cents)
	return nil
}

// ProcessPending sweeps one batch of rows still marked pending.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.ListPendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending sync: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))
	for _, row := range pending {
		if err := w.syncTransaction(ctx, row.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export pending transaction",
				"transaction_id", row.ID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck drains a larger pending backlog once, recovering
// from downtime or missed messages.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.ListPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending sync for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending transactions on startup, processing...",
		"count", len(pending))

	synced := 0
	failed := 0
	for _, row := range pending {
		if err := w.syncTransaction(ctx, row.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction during startup",
				"transaction_id", row.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}

// RunPendingSweep loops the pending sweep until the context ends.
func (w *SyncWorker) RunPendingSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending sweep failed", "error", err)
			}
		}
	}
}
