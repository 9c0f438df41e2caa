package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/openalpha/spotex/types"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// statusDetail maps a domain error to its HTTP status and client-facing
// message. Unrecognized errors, including reservation accounting failures,
// are internal.
func statusDetail(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, types.ErrWalletNotFound):
		return http.StatusNotFound, "Wallet not found"
	case errors.Is(err, types.ErrInstrumentNotFound):
		return http.StatusNotFound, "Instrument not found"
	case errors.Is(err, types.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, types.ErrInvalidAuthFormat):
		return http.StatusUnauthorized, "Invalid authorization format"
	case errors.Is(err, types.ErrInvalidAPIKey):
		return http.StatusUnauthorized, "Invalid API key"
	case errors.Is(err, types.ErrAdminRequired):
		return http.StatusForbidden, "Access denied: Admin rights required"
	case errors.Is(err, types.ErrAccessDenied):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, types.ErrInsufficientFunds):
		return http.StatusBadRequest, "Not enough funds"
	case errors.Is(err, types.ErrInsufficientLiquidity):
		return http.StatusBadRequest, "Not enough liquidity for market order"
	case errors.Is(err, types.ErrInvalidOrderState):
		return http.StatusBadRequest, "Order cannot be cancelled"
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict, "Already exists"
	case errors.Is(err, types.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError maps err onto the taxonomy and logs internal failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusDetail(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeErrorMessage(w, status, detail)
}
