package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeTransport     = "TRANSPORT_ERROR"
	ErrCodeAuthRequired  = "AUTH_REQUIRED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeEdgeRejected  = "EDGE_REJECTED"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeInterpolation = "INTERPOLATION_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeRemote        = "REMOTE_ERROR"
)

// ReconError is the structured error type for all reconchain operations.
type ReconError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ReconError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ReconError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ReconError.
func NewError(code, message string) *ReconError {
	return &ReconError{Code: code, Message: message}
}

// NewErrorf creates a new ReconError with a formatted message.
func NewErrorf(code, format string, args ...any) *ReconError {
	return &ReconError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *ReconError) WithCause(err error) *ReconError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ReconError) WithDetails(details map[string]any) *ReconError {
	e.Details = details
	return e
}

// IsCode reports whether err is a ReconError carrying the given code.
func IsCode(err error, code string) bool {
	re, ok := err.(*ReconError)
	return ok && re.Code == code
}
