package google

import (
	"testing"
	"time"

	ports "bilancio/internal/sheets"
)

func TestFindRowByID(t *testing.T) {
	ids := [][]any{
		{"1"},
		{},
		{"42"},
		{" 7 "},
	}

	tests := []struct {
		name string
		id   int64
		want int
	}{
		{"first row", 1, 2},
		{"after empty row", 42, 4},
		{"whitespace padded cell", 7, 5},
		{"absent", 99, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findRowByID(ids, tt.id); got != tt.want {
				t.Errorf("findRowByID(%d) = %d, want %d", tt.id, got, tt.want)
			}
		})
	}
}

func TestFindRowByID_NumericCells(t *testing.T) {
	// USER_ENTERED writes can come back as numbers, not strings.
	ids := [][]any{{float64(12)}, {int64(34)}}
	if got := findRowByID(ids, 12); got != 2 {
		t.Errorf("float cell: got row %d, want 2", got)
	}
	if got := findRowByID(ids, 34); got != 3 {
		t.Errorf("int cell: got row %d, want 3", got)
	}
}

func TestRowValues(t *testing.T) {
	row := ports.ExportRow{
		TransactionID: 9,
		Date:          time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Vendor:        "Supermarket",
		Description:   "weekly shop",
		AmountCents:   -4550,
		Categories:    "Groceries: -45.50",
	}

	values := rowValues(row)
	if len(values) != 7 {
		t.Fatalf("got %d columns, want 7", len(values))
	}
	if values[1] != "2026-03-15" {
		t.Errorf("date column = %v", values[1])
	}
	if values[4] != -45.50 {
		t.Errorf("amount column = %v, want -45.5", values[4])
	}
	if values[6] != "" {
		t.Errorf("kind column = %v, want empty", values[6])
	}

	row.IsTransfer = true
	if got := rowValues(row)[6]; got != "transfer" {
		t.Errorf("kind column = %v, want transfer", got)
	}
}
