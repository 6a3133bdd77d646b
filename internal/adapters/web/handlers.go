package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"refund-ledger/internal/app"

	"github.com/go-chi/chi/v5"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string) http.Handler {
	h := &Handler{svc: svc, jwtSecret: jwtSecret}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Post("/api/refunds", h.createRefund)
		r.Get("/api/refunds", h.listRefunds)
		r.Get("/api/refunds/{id}", h.getRefund)
		r.Post("/api/refunds/{id}/approve", h.approveRefund)
		r.Post("/api/refunds/{id}/complete", h.completeRefund)
		r.Post("/api/refunds/{id}/cancel", h.cancelRefund)

		r.Get("/api/vouchers/code/{code}", h.lookupVoucher)
		r.Post("/api/vouchers/{id}/redeem", h.redeemVoucher)
		r.Post("/api/vouchers/{id}/cancel", h.cancelVoucher)
		r.Get("/api/vouchers/{id}/history", h.voucherHistory)

		r.Get("/api/stock", h.stockLevels)
	})

	return r
}

// health reports service liveness.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// idParam extracts the numeric {id} URL parameter.
func idParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil && id > 0
}

// decodeJSON decodes the request body into v and writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the
// limit set by RequestBodyLimit; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
