package http

import (
	"errors"
	"net/http"

	"spendwise/internal/auth"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		respondError(w, r, applog.OpRead, err)
		return
	}

	dashboard, err := s.deps.Analytics.Dashboard(r.Context(), auth.OwnerFrom(r.Context()), window)
	if err != nil {
		respondError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

type predictionUnavailable struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}

// handlePredictions answers 200 with available=false when the model replied
// but nothing usable could be read from it.
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	prediction, err := s.deps.Predictions.Predict(r.Context(), auth.OwnerFrom(r.Context()))
	if errors.Is(err, services.ErrPredictionsUnavailable) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Prediction reply unusable",
			applog.FieldOperation, applog.OpPredict, applog.FieldError, err)
		writeJSON(w, http.StatusOK, predictionUnavailable{
			Available: false,
			Reason:    "the model reply could not be read, try again later",
		})
		return
	}
	if err != nil {
		respondError(w, r, applog.OpPredict, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}
