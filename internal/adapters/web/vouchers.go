package web

import (
	"net/http"

	"refund-ledger/internal/app"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) lookupVoucher(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, r, "voucher code required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.LookupVoucher(r.Context(), claims.CompanyID, code)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) redeemVoucher(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid voucher id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var req app.RedeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = claims.ActorID

	result, err := h.svc.RedeemVoucher(r.Context(), claims.CompanyID, id, req)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) cancelVoucher(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid voucher id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CancelVoucher(r.Context(), claims.CompanyID, id, claims.ActorID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) voucherHistory(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		writeError(w, r, "invalid voucher id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.GetVoucherHistory(r.Context(), claims.CompanyID, id)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, result)
}
