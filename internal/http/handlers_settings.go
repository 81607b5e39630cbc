package http

import (
	"net/http"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.Get(r.Context(), auth.OwnerFrom(r.Context()))
	if err != nil {
		respondError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, applog.OpUpdate, err)
		return
	}

	st, err := s.deps.Settings.Update(r.Context(), auth.OwnerFrom(r.Context()), core.Settings{
		Currency:       req.Currency,
		AutoCategorize: *req.AutoCategorize,
		BudgetAlerts:   *req.BudgetAlerts,
	})
	if err != nil {
		respondError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
