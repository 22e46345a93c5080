package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/booking-engine/internal/apperror"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func statusFor(code apperror.Code) int {
	switch code {
	case apperror.InvalidInput:
		return http.StatusBadRequest
	case apperror.Forbidden:
		return http.StatusForbidden
	case apperror.NotFound:
		return http.StatusNotFound
	case apperror.SlotAlreadyBooked, apperror.InvalidTransition, apperror.LockContention:
		return http.StatusConflict
	case apperror.OutsideWorkingHours, apperror.ExceptionBlocked:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeServiceError renders an error returned by a service. Internal errors
// are logged and their details withheld from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperror.CodeOf(err)
	status := statusFor(code)

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, status, string(apperror.Internal), "internal error")
		return
	}

	if code == apperror.LockContention {
		w.Header().Set("Retry-After", "1")
	}

	details := err.Error()
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		details = appErr.Message
	}

	writeError(w, status, string(code), details)
}
