package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bcbuzz/api/internal/domain"
)

// MessageEnvelope is the generic response wrapper. Error carries the
// machine-readable code from the domain taxonomy; Message the human text.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SignupEnvelope wraps the signup response.
type SignupEnvelope struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

// AuthEnvelope wraps the verify-otp response.
type AuthEnvelope struct {
	Token string           `json:"token"`
	User  *domain.Identity `json:"user"`
}

// ResendEnvelope wraps the resend-otp response.
type ResendEnvelope struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Email   string `json:"email"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, MessageEnvelope{Message: msg, Error: code})
}

// httpError maps a service error onto an HTTP status and the {message, error}
// envelope. FlowErrors carry their own code; anything else is an unexpected
// failure, logged with detail and returned as an opaque 500.
func httpError(w http.ResponseWriter, err error) {
	var fe *domain.FlowError
	if errors.As(err, &fe) {
		writeError(w, statusFor(fe.Kind), fe.Code, fe.Message)
		return
	}
	slog.Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, domain.CodeServerError, "something went wrong")
}

func statusFor(kind error) int {
	switch {
	case errors.Is(kind, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(kind, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
