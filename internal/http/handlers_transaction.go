package http

import (
	"net/http"

	"bilancio/internal/core"
)

type splitRequest struct {
	CategoryID int64  `json:"categoryId"`
	Amount     string `json:"amount"`
}

type transactionRequest struct {
	Amount      string         `json:"amount"`
	Vendor      string         `json:"vendor"`
	Description string         `json:"description"`
	Date        string         `json:"date"`
	Splits      []splitRequest `json:"splits"`
}

func (req transactionRequest) toInput() (core.TransactionInput, error) {
	amount, err := core.ParseSignedDecimalToCents(req.Amount)
	if err != nil {
		return core.TransactionInput{}, core.NewValidationError("amount", "must be a decimal amount")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.TransactionInput{}, err
	}

	in := core.TransactionInput{
		Amount:      core.Money{Cents: amount},
		Vendor:      req.Vendor,
		Description: req.Description,
		Date:        date,
		Splits:      make([]core.SplitInput, 0, len(req.Splits)),
	}
	for _, s := range req.Splits {
		cents, err := core.ParseSignedDecimalToCents(s.Amount)
		if err != nil {
			return core.TransactionInput{}, core.NewValidationError("splits", "split amounts must be decimal amounts")
		}
		in.Splits = append(in.Splits, core.SplitInput{
			CategoryID: s.CategoryID,
			Amount:     core.Money{Cents: cents},
		})
	}
	return in, nil
}

type splitJSON struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"categoryId"`
	Amount     string `json:"amount"`
}

type transferJSON struct {
	SourceCategoryID      int64  `json:"sourceCategoryId"`
	DestinationCategoryID int64  `json:"destinationCategoryId"`
	Amount                string `json:"amount"`
}

type transactionJSON struct {
	ID          int64         `json:"id"`
	Amount      string        `json:"amount"`
	Vendor      string        `json:"vendor"`
	Description string        `json:"description,omitempty"`
	Date        string        `json:"date"`
	Splits      []splitJSON   `json:"splits"`
	Transfer    *transferJSON `json:"transfer,omitempty"`
}

func transactionToJSON(view core.TransactionView) transactionJSON {
	out := transactionJSON{
		ID:          view.ID,
		Amount:      view.Amount.String(),
		Vendor:      view.Vendor,
		Description: view.Description,
		Date:        view.Date.Format("2006-01-02"),
		Splits:      make([]splitJSON, 0, len(view.Splits)),
	}
	for _, split := range view.Splits {
		out.Splits = append(out.Splits, splitJSON{
			ID:         split.ID,
			CategoryID: split.CategoryID,
			Amount:     split.Amount.String(),
		})
	}
	if view.Transfer != nil {
		out.Transfer = &transferJSON{
			SourceCategoryID:      view.Transfer.SourceCategoryID,
			DestinationCategoryID: view.Transfer.DestinationCategoryID,
			Amount:                view.Transfer.Amount.String(),
		}
	}
	return out
}

type categoryRefJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type monthTransactionJSON struct {
	ID          int64             `json:"id"`
	Amount      string            `json:"amount"`
	Vendor      string            `json:"vendor"`
	Description string            `json:"description,omitempty"`
	Date        string            `json:"date"`
	Categories  []categoryRefJSON `json:"categories"`
}

func (s *Server) handleListBudgetTransactions(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
		return
	}
	listed, err := s.transactions.ListForMonth(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]monthTransactionJSON, 0, len(listed))
	for _, txn := range listed {
		row := monthTransactionJSON{
			ID:          txn.ID,
			Amount:      txn.Amount.String(),
			Vendor:      txn.Vendor,
			Description: txn.Description,
			Date:        txn.Date.Format("2006-01-02"),
			Categories:  make([]categoryRefJSON, 0, len(txn.Categories)),
		}
		for _, ref := range txn.Categories {
			row.Categories = append(row.Categories, categoryRefJSON{ID: ref.ID, Name: ref.Name})
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := s.transactions.RecentVendors(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vendors == nil {
		vendors = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	txn, err := s.transactions.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.transactions.Get(r.Context(), txn.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionToJSON(view))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToJSON(view))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.transactions.Update(r.Context(), id, in); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionToJSON(view))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.transactions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount                string `json:"amount"`
		SourceCategoryID      int64  `json:"sourceCategoryId"`
		DestinationCategoryID int64  `json:"destinationCategoryId"`
		Date                  string `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, core.NewValidationError("amount", "must be a positive decimal amount"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.transactions.Transfer(r.Context(), core.TransferInput{
		Amount:                core.Money{Cents: amount},
		SourceCategoryID:      req.SourceCategoryID,
		DestinationCategoryID: req.DestinationCategoryID,
		Date:                  date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionToJSON(view))
}
