package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
)

type expenseListResponse struct {
	Expenses []core.Expense `json:"expenses"`
	Count    int            `json:"count"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		respondError(w, r, applog.OpList, err)
		return
	}

	items, err := s.deps.Expenses.ListExpenses(r.Context(), auth.OwnerFrom(r.Context()), opts)
	if err != nil {
		respondError(w, r, applog.OpList, err)
		return
	}
	if items == nil {
		items = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, expenseListResponse{Expenses: items, Count: len(items)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}

	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}

	saved, err := s.deps.Expenses.CreateExpense(r.Context(), auth.OwnerFrom(r.Context()), services.NewExpense{
		Description: sanitizeInput(req.Description),
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
		Date:        date,
	})
	if err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+saved.ID).
		JSON(saved).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Expenses.DeleteExpense(r.Context(), auth.OwnerFrom(r.Context()), id); err != nil {
		respondError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, applog.OpCategorize, err)
		return
	}
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		respondError(w, r, applog.OpCategorize, err)
		return
	}

	suggestion, err := s.deps.Expenses.SuggestCategory(r.Context(), sanitizeInput(req.Description), amount)
	if err != nil {
		respondError(w, r, applog.OpCategorize, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}
