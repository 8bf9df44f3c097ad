package google

import (
	"fmt"
	"strconv"
	"strings"

	ports "bilancio/internal/sheets"
)

const dateLayout = "2006-01-02"

// findRowByID searches an A-column slice (as returned by the Sheets
// API, starting at row 2) for the transaction id and returns its
// 1-based sheet row number, or 0 when absent.
func findRowByID(ids [][]any, transactionID int64) int {
	want := strconv.FormatInt(transactionID, 10)
	for i, row := range ids {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 2
		}
	}
	return 0
}

// rowValues lays out a transaction as sheet columns A through G:
// id, date, vendor, description, amount in euros, categories,
// transfer flag.
func rowValues(row ports.ExportRow) []any {
	kind := ""
	if row.IsTransfer {
		kind = "transfer"
	}
	return []any{
		row.TransactionID,
		row.Date.Format(dateLayout),
		row.Vendor,
		row.Description,
		float64(row.AmountCents) / 100.0,
		row.Categories,
		kind,
	}
}
