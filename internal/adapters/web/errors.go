package web

import (
	"encoding/json"
	"log"
	"net/http"

	"refund-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONStatus writes a JSON response with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpStatusForCode maps the ledger's stable error codes to HTTP statuses.
func httpStatusForCode(code string) int {
	switch code {
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeInvalidTransition, core.CodeAlreadyFinalized,
		core.CodeVoucherNotActive, core.CodeVoucherNotTransferable,
		core.CodeInsufficientBalance:
		return http.StatusConflict
	case core.CodeValidation:
		return http.StatusBadRequest
	case core.CodeGenerationExhausted, core.CodeStorageFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError translates a core error into the API error envelope.
// Storage failures are logged server-side and surfaced as an opaque
// message; business-rule errors pass their message through.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := core.ErrorCode(err)
	message := err.Error()
	if code == core.CodeStorageFailure {
		log.Printf("storage failure [%s]: %v", requestIDFromContext(r.Context()), err)
		message = "internal storage error"
	}
	writeError(w, r, message, code, httpStatusForCode(code))
}
