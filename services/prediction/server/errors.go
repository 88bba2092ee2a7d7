package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"stakeoracle/core"
	"stakeoracle/native/bank"
	"stakeoracle/native/prediction"
)

var (
	errMissingCaller = errors.New("caller identity required")
	errInvalidBody   = errors.New("invalid payload")
	errNoJournal     = errors.New("event journal not configured")
)

// statusFor maps engine and ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch prediction.KindOf(err) {
	case prediction.KindAuthorization:
		return http.StatusForbidden
	case prediction.KindState, prediction.KindDuplication:
		return http.StatusConflict
	case prediction.KindConservation:
		return http.StatusUnprocessableEntity
	case prediction.KindValidation:
		return http.StatusBadRequest
	case prediction.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	switch {
	case errors.Is(err, bank.ErrInsufficientBalance), errors.Is(err, bank.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrAmountOverflow):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrOracleReadOnly):
		return http.StatusConflict
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, errNoJournal):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		message = http.StatusText(status)
	}
	s.writeJSON(w, status, errorResponse{Error: message})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
