package http

import (
	"net/http"

	"spendwise/internal/auth"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
)

func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	image, err := readReceiptImage(w, r)
	if err != nil {
		respondError(w, r, applog.OpScan, err)
		return
	}

	receipt, err := s.deps.Receipts.Scan(r.Context(), auth.OwnerFrom(r.Context()), image)
	if err != nil {
		respondError(w, r, applog.OpScan, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleConfirmReceipt stores the expense the user accepted from a scan.
func (s *Server) handleConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	var req confirmReceiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}

	saved, err := s.deps.Receipts.Confirm(r.Context(), auth.OwnerFrom(r.Context()), services.ReceiptConfirmation{
		Merchant: sanitizeInput(req.Merchant),
		Total:    string(req.Total),
		Date:     req.Date,
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
