package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"bilancio/internal/core"
)

// ExportRow is the flattened, sheet-ready form of a transaction.
type ExportRow struct {
	TransactionID int64
	Date          time.Time
	Vendor        string
	Description   string
	AmountCents   int64
	// Categories is the split breakdown, "Name: amount" joined with
	// "; ", ordered by category name.
	Categories string
	IsTransfer bool
}

// TransactionExporter is the outbound port for the export pipeline.
type TransactionExporter interface {
	// Upsert writes the row, replacing any previous export of the
	// same transaction, and returns a backend-specific reference.
	Upsert(ctx context.Context, row ExportRow) (ref string, err error)
	// Delete removes a previously exported transaction. Deleting a
	// transaction that was never exported is not an error.
	Delete(ctx context.Context, transactionID int64) error
}

// BuildExportRow flattens a transaction and its splits for export.
// Category names come from the supplied lookup; splits for unknown
// categories render with the raw id so the export never fails on a
// lookup gap.
func BuildExportRow(view core.TransactionView, categories map[int64]core.Category) ExportRow {
	parts := make([]string, 0, len(view.Splits))
	for _, split := range view.Splits {
		name := fmt.Sprintf("category %d", split.CategoryID)
		if cat, ok := categories[split.CategoryID]; ok {
			name = cat.Name
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, split.Amount))
	}
	sort.Strings(parts)

	return ExportRow{
		TransactionID: view.ID,
		Date:          view.Date,
		Vendor:        view.Vendor,
		Description:   view.Description,
		AmountCents:   view.Amount.Cents,
		Categories:    strings.Join(parts, "; "),
		IsTransfer:    view.Transfer != nil,
	}
}
