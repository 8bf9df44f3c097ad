package http

import (
	"net/http"
	"strconv"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

type categoryJSON struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	CreatedMonth string `json:"createdMonth"`
	DeletedMonth string `json:"deletedMonth,omitempty"`
}

func categoryToJSON(cat core.Category) categoryJSON {
	cj := categoryJSON{
		ID:           cat.ID,
		Name:         cat.Name,
		Type:         string(cat.Type),
		CreatedMonth: cat.CreatedMonth.String(),
	}
	if cat.DeletedMonth != nil {
		cj.DeletedMonth = cat.DeletedMonth.String()
	}
	return cj
}

type categoryTransactionJSON struct {
	SplitID     int64  `json:"splitId"`
	Date        string `json:"date"`
	Vendor      string `json:"vendor"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	IsTransfer  bool   `json:"isTransfer"`
}

type monthBreakdownJSON struct {
	Month    string `json:"month"`
	Budgeted string `json:"budgeted"`
	Spent    string `json:"spent"`
}

type categoryDetailJSON struct {
	categoryJSON
	Month           string                    `json:"month"`
	Budgeted        string                    `json:"budgeted"`
	Spent           string                    `json:"spent"`
	Balance         string                    `json:"balance"`
	StartingBalance string                    `json:"startingBalance"`
	Deletable       bool                      `json:"deletable"`
	Transactions    []categoryTransactionJSON `json:"transactions"`
	History         []monthBreakdownJSON      `json:"history,omitempty"`
}

func detailToJSON(detail services.CategoryDetail) categoryDetailJSON {
	out := categoryDetailJSON{
		categoryJSON:    categoryToJSON(detail.Category),
		Month:           detail.Month.String(),
		Budgeted:        detail.Budgeted.String(),
		Spent:           detail.Spent.String(),
		Balance:         detail.Balance.String(),
		StartingBalance: detail.StartingBalance.String(),
		Deletable:       detail.Deletable,
		Transactions:    make([]categoryTransactionJSON, 0, len(detail.Transactions)),
	}
	for _, txn := range detail.Transactions {
		out.Transactions = append(out.Transactions, categoryTransactionJSON{
			SplitID:     txn.SplitID,
			Date:        txn.Date.Format("2006-01-02"),
			Vendor:      txn.Vendor,
			Description: txn.Description,
			Amount:      txn.Amount.String(),
			IsTransfer:  txn.IsTransfer,
		})
	}
	for _, row := range detail.History {
		out.History = append(out.History, monthBreakdownJSON{
			Month:    row.Month.String(),
			Budgeted: row.Budgeted.String(),
			Spent:    row.Spent.String(),
		})
	}
	return out
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.categories.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryJSON, 0, len(categories))
	for _, cat := range categories {
		out = append(out, categoryToJSON(cat))
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Month string `json:"month"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	typ, err := core.ParseCategoryType(req.Type)
	if err != nil {
		writeError(w, r, core.NewValidationError("type", err.Error()))
		return
	}
	month := s.budgets.CurrentMonth()
	if strings.TrimSpace(req.Month) != "" {
		month, err = core.ParseMonth(req.Month)
		if err != nil {
			writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
			return
		}
	}

	cat, err := s.categories.Create(r.Context(), strings.TrimSpace(req.Name), typ, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryToJSON(cat))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := queryMonth(r, s.budgets.CurrentMonth())
	if err != nil {
		writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
		return
	}

	includeTransfers := r.URL.Query().Get("includeTransfers") == "true"
	historyMonths := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("history")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 120 {
			writeError(w, r, core.NewValidationError("history", "must be between 0 and 120"))
			return
		}
		historyMonths = n
	}

	detail, err := s.categories.Detail(r.Context(), id, month, includeTransfers, historyMonths)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detailToJSON(detail))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Name *string `json:"name"`
		Type *string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == nil && req.Type == nil {
		writeError(w, r, core.NewValidationError("body", "nothing to update"))
		return
	}

	if req.Name != nil {
		if err := s.categories.Rename(r.Context(), id, strings.TrimSpace(*req.Name)); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Type != nil {
		typ, err := core.ParseCategoryType(*req.Type)
		if err != nil {
			writeError(w, r, core.NewValidationError("type", err.Error()))
			return
		}
		if err := s.categories.SetType(r.Context(), id, typ); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := queryMonth(r, s.budgets.CurrentMonth())
	if err != nil {
		writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
		return
	}

	if err := s.categories.Delete(r.Context(), id, month); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Month  string `json:"month"`
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	month := s.budgets.CurrentMonth()
	if strings.TrimSpace(req.Month) != "" {
		month, err = core.ParseMonth(req.Month)
		if err != nil {
			writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
			return
		}
	}
	target, err := core.ParseSignedDecimalToCents(req.Target)
	if err != nil {
		writeError(w, r, core.NewValidationError("target", "must be a decimal amount"))
		return
	}

	delta, err := s.transactions.SetCategoryBalance(r.Context(), id, month, core.Money{Cents: target})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"adjustment": delta.String(),
		"balance":    core.Money{Cents: target}.String(),
	})
}
