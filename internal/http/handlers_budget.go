package http

import (
	"net/http"

	"bilancio/internal/core"
)

type monthsResponse struct {
	Months  []string `json:"months"`
	Current string   `json:"current"`
}

type budgetCategoryJSON struct {
	CategoryID   int64  `json:"categoryId"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Allocated    string `json:"allocated"`
	Budgeted     string `json:"budgeted"`
	Spent        string `json:"spent"`
	Balance      string `json:"balance"`
	DeletedMonth string `json:"deletedMonth,omitempty"`
}

type budgetJSON struct {
	Month         string               `json:"month"`
	Income        string               `json:"income"`
	TotalBudgeted string               `json:"totalBudgeted"`
	LeftToBudget  string               `json:"leftToBudget"`
	Categories    []budgetCategoryJSON `json:"categories"`
}

func budgetToJSON(view core.BudgetView) budgetJSON {
	out := budgetJSON{
		Month:         view.Budget.Month.String(),
		Income:        view.Budget.Income.String(),
		TotalBudgeted: view.TotalBudgeted().String(),
		LeftToBudget:  view.LeftToBudget().String(),
		Categories:    make([]budgetCategoryJSON, 0, len(view.Categories)),
	}
	for _, row := range view.Categories {
		cj := budgetCategoryJSON{
			CategoryID: row.CategoryID,
			Name:       row.Category.Name,
			Type:       string(row.Category.Type),
			Allocated:  row.BudgetCategory.Budgeted.String(),
			Budgeted:   row.Budgeted.String(),
			Spent:      row.Spent.String(),
			Balance:    row.Balance.String(),
		}
		if row.Category.DeletedMonth != nil {
			cj.DeletedMonth = row.Category.DeletedMonth.String()
		}
		out.Categories = append(out.Categories, cj)
	}
	return out
}

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.budgets.Months(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := monthsResponse{
		Months:  make([]string, len(months)),
		Current: s.budgets.CurrentMonth().String(),
	}
	for i, m := range months {
		resp.Months[i] = m.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
		return
	}
	if cached, ok := s.budgetViews.Get(month.String()); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	view, err := s.budgets.BudgetForMonth(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body := budgetToJSON(view)
	s.budgetViews.Set(month.String(), body)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
		return
	}

	var req struct {
		Income string `json:"income"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	income, err := core.ParseSignedDecimalToCents(req.Income)
	if err != nil {
		writeError(w, r, core.NewValidationError("income", "must be a decimal amount"))
		return
	}

	// Materialize the month first so writes to the current month work
	// on a fresh install, and writes to other months redirect the same
	// way reads do.
	if _, err := s.budgets.BudgetForMonth(r.Context(), month); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.budgets.SetIncome(r.Context(), month, core.Money{Cents: income}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSetAllocation(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeError(w, r, core.NewValidationError("month", "must be YYYY-MM"))
		return
	}
	categoryID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		BudgetedAmount string `json:"budgetedAmount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseSignedDecimalToCents(req.BudgetedAmount)
	if err != nil {
		writeError(w, r, core.NewValidationError("budgetedAmount", "must be a decimal amount"))
		return
	}

	if _, err := s.budgets.BudgetForMonth(r.Context(), month); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.budgets.SetBudgetedAmount(r.Context(), month, categoryID, core.Money{Cents: amount}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
