package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Machine-readable error codes returned alongside the human message in every
// failure envelope.
const (
	CodeMissingFields      = "MISSING_FIELDS"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeInvalidPassword    = "INVALID_PASSWORD"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidOTP         = "INVALID_OTP"
	CodeUnauthorizedDomain = "UNAUTHORIZED_DOMAIN"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeOTPInvalid         = "OTP_INVALID"
	CodeServerError        = "SERVER_ERROR"
)

// FlowError carries a machine-readable code and a human message for an auth
// flow failure. Kind is one of the sentinel errors above so handlers can pick
// the HTTP status with errors.Is.
type FlowError struct {
	Code    string
	Message string
	Kind    error
}

func (e *FlowError) Error() string { return e.Message }

func (e *FlowError) Unwrap() error { return e.Kind }

// NewFlowError builds a FlowError wrapping the given sentinel.
func NewFlowError(code, message string, kind error) *FlowError {
	return &FlowError{Code: code, Message: message, Kind: kind}
}
