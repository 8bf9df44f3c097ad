package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

// newTestServer wires a server against a throwaway database with the
// clock pinned to the first day of now.
func newTestServer(t *testing.T, now string) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bilancio.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	pinned, err := core.ParseMonth(now)
	if err != nil {
		t.Fatalf("parse month %q: %v", now, err)
	}

	calc := services.NewBalanceCalculator(repo)
	budgets := services.NewBudgetService(repo, calc, cache.NewLRUCache[core.Month](8, time.Minute))
	budgets.WithClock(func() time.Time { return pinned.Start() })
	categories := services.NewCategoryService(repo, budgets, calc)
	transactions := services.NewTransactionService(repo, categories, calc, nil)
	transactions.WithClock(func() time.Time { return pinned.Start() })

	srv := NewServer(":0", budgets, categories, transactions)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

// do runs a request through the full middleware chain and decodes the
// JSON body, if any, into out.
func do(t *testing.T, srv *Server, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec
}

func createCategory(t *testing.T, srv *Server, name, typ string) int64 {
	t.Helper()
	var resp categoryJSON
	rec := do(t, srv, http.MethodPost, "/api/categories", map[string]string{"name": name, "type": typ}, &resp)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category %q: status = %d, body %s", name, rec.Code, rec.Body.String())
	}
	return resp.ID
}

func createTransaction(t *testing.T, srv *Server, categoryID int64, amount, date string) transactionJSON {
	t.Helper()
	var resp transactionJSON
	rec := do(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount": amount,
		"vendor": "Test Vendor",
		"date":   date,
		"splits": []map[string]any{{"categoryId": categoryID, "amount": amount}},
	}, &resp)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: status = %d, body %s", rec.Code, rec.Body.String())
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := do(t, srv, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestGetBudgetCreatesCurrentMonth(t *testing.T) {
	srv := newTestServer(t, "2026-06")

	var budget budgetJSON
	rec := do(t, srv, http.MethodGet, "/api/budgets/2026-06", nil, &budget)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if budget.Month != "2026-06" {
		t.Errorf("month = %q, want 2026-06", budget.Month)
	}
	if budget.Income != "0.00" {
		t.Errorf("income = %q, want 0.00", budget.Income)
	}
	if len(budget.Categories) != 0 {
		t.Errorf("categories = %d, want none on a fresh budget", len(budget.Categories))
	}
}

func TestGetBudgetRedirects(t *testing.T) {
	srv := newTestServer(t, "2026-06")

	// Materialize the current month so earlier requests have a floor.
	do(t, srv, http.MethodGet, "/api/budgets/2026-06", nil, nil)

	cases := []struct {
		name     string
		path     string
		location string
	}{
		{"future month", "/api/budgets/2026-09", "/api/budgets/2026-06"},
		{"before first budget", "/api/budgets/2025-01", "/api/budgets/2026-06"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tc.path, nil, nil)
			if rec.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tc.location {
				t.Errorf("Location = %q, want %q", got, tc.location)
			}
		})
	}
}

func TestBudgetIncomeAndAllocation(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	catID := createCategory(t, srv, "Groceries", "NON_ACCUMULATING")

	rec := do(t, srv, http.MethodPut, "/api/budgets/2026-06/income", map[string]string{"income": "2500.00"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set income: status = %d, body %s", rec.Code, rec.Body.String())
	}

	path := fmt.Sprintf("/api/budgets/2026-06/categories/%d", catID)
	rec = do(t, srv, http.MethodPut, path, map[string]string{"budgetedAmount": "400.00"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set allocation: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var budget budgetJSON
	do(t, srv, http.MethodGet, "/api/budgets/2026-06", nil, &budget)
	if budget.Income != "2500.00" {
		t.Errorf("income = %q, want 2500.00", budget.Income)
	}
	if budget.TotalBudgeted != "400.00" {
		t.Errorf("totalBudgeted = %q, want 400.00", budget.TotalBudgeted)
	}
	if budget.LeftToBudget != "2100.00" {
		t.Errorf("leftToBudget = %q, want 2100.00", budget.LeftToBudget)
	}
	if len(budget.Categories) != 1 || budget.Categories[0].Allocated != "400.00" {
		t.Errorf("categories = %+v, want one row allocated 400.00", budget.Categories)
	}
}

func TestCreateCategoryValidation(t *testing.T) {
	srv := newTestServer(t, "2026-06")

	cases := []struct {
		name string
		body map[string]string
	}{
		{"empty name", map[string]string{"name": "", "type": "NON_ACCUMULATING"}},
		{"bad type", map[string]string{"name": "Groceries", "type": "weird"}},
		{"bad month", map[string]string{"name": "Groceries", "type": "NON_ACCUMULATING", "month": "June 2026"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/categories", tc.body, nil)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCategoryDetail(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	catID := createCategory(t, srv, "Groceries", "NON_ACCUMULATING")
	do(t, srv, http.MethodPut, fmt.Sprintf("/api/budgets/2026-06/categories/%d", catID),
		map[string]string{"budgetedAmount": "100.00"}, nil)
	createTransaction(t, srv, catID, "-25.50", "2026-06-10")

	var detail categoryDetailJSON
	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/api/categories/%d", catID), nil, &detail)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if detail.Budgeted != "100.00" || detail.Spent != "-25.50" || detail.Balance != "74.50" {
		t.Errorf("budgeted/spent/balance = %q/%q/%q, want 100.00/-25.50/74.50",
			detail.Budgeted, detail.Spent, detail.Balance)
	}
	if detail.Deletable {
		t.Error("category with activity reported deletable")
	}
	if len(detail.Transactions) != 1 || detail.Transactions[0].Amount != "-25.50" {
		t.Errorf("transactions = %+v, want the single -25.50 split", detail.Transactions)
	}
}

func TestCategoryNotFound(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	rec := do(t, srv, http.MethodGet, "/api/categories/9999", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteCategoryConflict(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	catID := createCategory(t, srv, "Groceries", "NON_ACCUMULATING")
	createTransaction(t, srv, catID, "-10.00", "2026-06-05")

	// Retiring from June would orphan June's split.
	rec := do(t, srv, http.MethodDelete, fmt.Sprintf("/api/categories/%d?month=2026-06", catID), nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}

	unusedID := createCategory(t, srv, "Unused", "NON_ACCUMULATING")
	rec = do(t, srv, http.MethodDelete, fmt.Sprintf("/api/categories/%d", unusedID), nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete unused: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	catID := createCategory(t, srv, "Groceries", "NON_ACCUMULATING")

	created := createTransaction(t, srv, catID, "-42.00", "2026-06-03")
	if created.Amount != "-42.00" || len(created.Splits) != 1 {
		t.Fatalf("created = %+v, want -42.00 with one split", created)
	}

	var fetched transactionJSON
	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/api/transactions/%d", created.ID), nil, &fetched)
	if rec.Code != http.StatusOK || fetched.ID != created.ID {
		t.Fatalf("get: status = %d, id = %d", rec.Code, fetched.ID)
	}

	var updated transactionJSON
	rec = do(t, srv, http.MethodPut, fmt.Sprintf("/api/transactions/%d", created.ID), map[string]any{
		"amount": "-50.00",
		"vendor": "Corrected Vendor",
		"date":   "2026-06-04",
		"splits": []map[string]any{{"categoryId": catID, "amount": "-50.00"}},
	}, &updated)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if updated.Amount != "-50.00" || updated.Vendor != "Corrected Vendor" || updated.Date != "2026-06-04" {
		t.Errorf("updated = %+v", updated)
	}

	rec = do(t, srv, http.MethodDelete, fmt.Sprintf("/api/transactions/%d", created.ID), nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = do(t, srv, http.MethodGet, fmt.Sprintf("/api/transactions/%d", created.ID), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestTransactionValidation(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	catID := createCategory(t, srv, "Groceries", "NON_ACCUMULATING")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad amount", map[string]any{
			"amount": "lots", "vendor": "V", "date": "2026-06-01",
			"splits": []map[string]any{{"categoryId": catID, "amount": "lots"}},
		}},
		{"bad date", map[string]any{
			"amount": "-1.00", "vendor": "V", "date": "yesterday",
			"splits": []map[string]any{{"categoryId": catID, "amount": "-1.00"}},
		}},
		{"splits do not sum", map[string]any{
			"amount": "-10.00", "vendor": "V", "date": "2026-06-01",
			"splits": []map[string]any{{"categoryId": catID, "amount": "-4.00"}},
		}},
		{"no splits", map[string]any{
			"amount": "-10.00", "vendor": "V", "date": "2026-06-01",
			"splits": []map[string]any{},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/transactions", tc.body, nil)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTransferEndpoint(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	fromID := createCategory(t, srv, "Groceries", "NON_ACCUMULATING")
	toID := createCategory(t, srv, "Household", "NON_ACCUMULATING")
	do(t, srv, http.MethodPut, fmt.Sprintf("/api/budgets/2026-06/categories/%d", fromID),
		map[string]string{"budgetedAmount": "100.00"}, nil)

	var txn transactionJSON
	rec := do(t, srv, http.MethodPost, "/api/transfers", map[string]any{
		"amount":                "30.00",
		"sourceCategoryId":      fromID,
		"destinationCategoryId": toID,
		"date":                  "2026-06-15",
	}, &txn)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if txn.Transfer == nil {
		t.Fatal("transfer block missing from response")
	}
	if txn.Transfer.SourceCategoryID != fromID || txn.Transfer.DestinationCategoryID != toID || txn.Transfer.Amount != "30.00" {
		t.Errorf("transfer = %+v", txn.Transfer)
	}
	if txn.Amount != "0.00" {
		t.Errorf("transaction amount = %q, want 0.00 (transfers never spend)", txn.Amount)
	}

	var detail categoryDetailJSON
	do(t, srv, http.MethodGet, fmt.Sprintf("/api/categories/%d", fromID), nil, &detail)
	if detail.Balance != "70.00" {
		t.Errorf("source balance = %q, want 70.00", detail.Balance)
	}
	var destDetail categoryDetailJSON
	do(t, srv, http.MethodGet, fmt.Sprintf("/api/categories/%d", toID), nil, &destDetail)
	if destDetail.Balance != "30.00" {
		t.Errorf("destination balance = %q, want 30.00", destDetail.Balance)
	}

	t.Run("same category rejected", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/transfers", map[string]any{
			"amount":                "5.00",
			"sourceCategoryId":      fromID,
			"destinationCategoryId": fromID,
			"date":                  "2026-06-15",
		}, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})
}

func TestSetCategoryBalanceEndpoint(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	catID := createCategory(t, srv, "Emergency Fund", "ACCUMULATING")

	var resp map[string]string
	rec := do(t, srv, http.MethodPost, fmt.Sprintf("/api/categories/%d/balance", catID),
		map[string]string{"month": "2026-06", "target": "500.00"}, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp["balance"] != "500.00" {
		t.Errorf("balance = %q, want 500.00", resp["balance"])
	}

	var detail categoryDetailJSON
	do(t, srv, http.MethodGet, fmt.Sprintf("/api/categories/%d", catID), nil, &detail)
	if detail.Balance != "500.00" {
		t.Errorf("detail balance = %q, want 500.00", detail.Balance)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	rec := do(t, srv, http.MethodGet, "/api/months", nil, nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestBudgetViewCacheFlushedOnWrite(t *testing.T) {
	srv := newTestServer(t, "2026-06")

	var before budgetJSON
	do(t, srv, http.MethodGet, "/api/budgets/2026-06", nil, &before)
	if before.Income != "0.00" {
		t.Fatalf("income = %q, want 0.00", before.Income)
	}

	rec := do(t, srv, http.MethodPut, "/api/budgets/2026-06/income", map[string]string{"income": "1234.56"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set income: status = %d", rec.Code)
	}

	var after budgetJSON
	do(t, srv, http.MethodGet, "/api/budgets/2026-06", nil, &after)
	if after.Income != "1234.56" {
		t.Errorf("income after write = %q, want 1234.56 (stale cached view?)", after.Income)
	}
}

func postTransaction(t *testing.T, srv *Server, vendor, date string, splits []map[string]any, amount string) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount": amount,
		"vendor": vendor,
		"date":   date,
		"splits": splits,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction %q: status = %d, body %s", vendor, rec.Code, rec.Body.String())
	}
}

func TestListBudgetTransactions(t *testing.T) {
	srv := newTestServer(t, "2026-06")
	groceries := createCategory(t, srv, "Groceries", "NON_ACCUMULATING")
	fun := createCategory(t, srv, "Fun", "NON_ACCUMULATING")

	postTransaction(t, srv, "Early", "2026-06-05",
		[]map[string]any{{"categoryId": groceries, "amount": "-10.00"}}, "-10.00")
	postTransaction(t, srv, "Shared", "2026-06-10",
		[]map[string]any{
			{"categoryId": groceries, "amount": "-20.00"},
			{"categoryId": fun, "amount": "-10.00"},
		}, "-30.00")
	postTransaction(t, srv, "Late", "2026-06-20",
		[]map[string]any{{"categoryId": fun, "amount": "-5.00"}}, "-5.00")
	rec := do(t, srv, http.MethodPost, "/api/transfers", map[string]any{
		"amount":                "5.00",
		"sourceCategoryId":      groceries,
		"destinationCategoryId": fun,
		"date":                  "2026-06-20",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transfer: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Transactions []monthTransactionJSON `json:"transactions"`
	}
	rec = do(t, srv, http.MethodGet, "/api/budgets/2026-06/transactions", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("list transactions: status = %d", rec.Code)
	}
	wantVendors := []string{"Transfer", "Late", "Shared", "Early"}
	if len(resp.Transactions) != len(wantVendors) {
		t.Fatalf("got %d transactions, want %d", len(resp.Transactions), len(wantVendors))
	}
	for i, want := range wantVendors {
		if resp.Transactions[i].Vendor != want {
			t.Errorf("transactions[%d].Vendor = %q, want %q", i, resp.Transactions[i].Vendor, want)
		}
	}

	shared := resp.Transactions[2]
	if len(shared.Categories) != 2 {
		t.Fatalf("shared transaction has %d categories, want 2", len(shared.Categories))
	}
	if shared.Categories[0].Name != "Groceries" || shared.Categories[1].Name != "Fun" {
		t.Errorf("shared categories = %q, %q; want Groceries, Fun",
			shared.Categories[0].Name, shared.Categories[1].Name)
	}

	// A month with no transactions lists empty, not 404.
	resp.Transactions = nil
	rec = do(t, srv, http.MethodGet, "/api/budgets/2026-05/transactions", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("list empty month: status = %d", rec.Code)
	}
	if len(resp.Transactions) != 0 {
		t.Errorf("empty month lists %d transactions", len(resp.Transactions))
	}
}

func TestRecentVendorsEndpoint(t *testing.T) {
	srv := newTestServer(t, "2026-06")

	var cat categoryJSON
	rec := do(t, srv, http.MethodPost, "/api/categories",
		map[string]string{"name": "Groceries", "type": "NON_ACCUMULATING", "month": "2026-01"}, &cat)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: status = %d, body %s", rec.Code, rec.Body.String())
	}
	other := createCategory(t, srv, "Fun", "NON_ACCUMULATING")

	split := func(amount string) []map[string]any {
		return []map[string]any{{"categoryId": cat.ID, "amount": amount}}
	}
	// Outside the three-month lookback from 2026-06-01.
	postTransaction(t, srv, "Old Market", "2026-02-15", split("-10.00"), "-10.00")
	// On the window boundary, included.
	postTransaction(t, srv, "Boundary", "2026-03-01", split("-10.00"), "-10.00")
	postTransaction(t, srv, "Butcher", "2026-06-05", split("-10.00"), "-10.00")
	postTransaction(t, srv, "Butcher", "2026-06-12", split("-15.00"), "-15.00")
	postTransaction(t, srv, "Apple Store", "2026-06-10", split("-20.00"), "-20.00")
	// Transfers never show up as vendors.
	rec = do(t, srv, http.MethodPost, "/api/transfers", map[string]any{
		"amount":                "5.00",
		"sourceCategoryId":      cat.ID,
		"destinationCategoryId": other,
		"date":                  "2026-06-05",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transfer: status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Vendors []string `json:"vendors"`
	}
	rec = do(t, srv, http.MethodGet, "/api/vendors", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("list vendors: status = %d", rec.Code)
	}
	want := []string{"Apple Store", "Boundary", "Butcher"}
	if len(resp.Vendors) != len(want) {
		t.Fatalf("vendors = %v, want %v", resp.Vendors, want)
	}
	for i := range want {
		if resp.Vendors[i] != want[i] {
			t.Errorf("vendors[%d] = %q, want %q", i, resp.Vendors[i], want[i])
		}
	}
}
