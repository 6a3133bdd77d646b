package web

import (
	"net/http"

	"refund-ledger/internal/app"
)

func (h *Handler) createRefund(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())

	var req app.CreateRefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = claims.ActorID

	result, err := h.svc.CreateRefund(r.Context(), claims.CompanyID, req)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSONStatus(w, result, http.StatusCreated)
}

func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())

	result, err := h.svc.ListRefunds(r.Context(), claims.CompanyID, r.URL.Query().Get("status"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) getRefund(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid refund id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.GetRefund(r.Context(), claims.CompanyID, id)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) approveRefund(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid refund id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ApproveRefund(r.Context(), claims.CompanyID, id, claims.ActorID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) completeRefund(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid refund id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CompleteRefund(r.Context(), claims.CompanyID, id, claims.ActorID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) cancelRefund(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid refund id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req app.CancelRefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Reason == "" {
		writeError(w, r, "cancellation requires a reason", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CancelRefund(r.Context(), claims.CompanyID, id, claims.ActorID, req.Reason)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) stockLevels(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())

	result, err := h.svc.GetStockLevels(r.Context(), claims.CompanyID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}
