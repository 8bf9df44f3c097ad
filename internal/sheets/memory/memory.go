// Package memory is an in-process exporter used in tests and local
// development, where a real spreadsheet is more trouble than it is
// worth.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bilancio/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows map[int64]sheets.ExportRow
}

var _ sheets.TransactionExporter = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[int64]sheets.ExportRow)}
}

// Upsert stores the row keyed by transaction id and returns a
// synthetic reference.
func (s *Store) Upsert(_ context.Context, row sheets.ExportRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.TransactionID] = row
	return fmt.Sprintf("mem:%d", row.TransactionID), nil
}

// Delete drops the row; unknown ids are a no-op.
func (s *Store) Delete(_ context.Context, transactionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, transactionID)
	return nil
}

// Rows returns a snapshot sorted by transaction id.
func (s *Store) Rows() []sheets.ExportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.ExportRow, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}
