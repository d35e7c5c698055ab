package entities

import "fmt"

// ErrorDetail provides structured error information.
// It is the error member of the callback envelope and of eval poll results.
// Error Types: "syntax", "runtime", "boundary", "timeout", "mode_mismatch",
// "cancelled", "config", "validation", "internal"
type ErrorDetail struct {
	// Details contains additional error context.
	Details map[string]any `json:"details,omitempty"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Origin names the host callback that raised the error, if any.
	Origin string `json:"origin,omitempty"`

	// Stack contains the script stack trace or the recovered panic stack.
	Stack string `json:"stack,omitempty"`

	// Line is the 1-based script line the error points at, 0 if unknown.
	Line int `json:"line,omitempty"`

	// IsTimeout indicates if this was a timeout error.
	IsTimeout bool `json:"is_timeout,omitempty"`

	// IsNotFound indicates if this was a "not found" error.
	IsNotFound bool `json:"is_not_found,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != "internal" {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	return msg
}

// NewErrorDetail creates a new ErrorDetail with the given type and message.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{
		Type:    errorType,
		Message: message,
	}
}

// WithDetails returns the ErrorDetail with the given details attached.
func (e *ErrorDetail) WithDetails(details map[string]any) *ErrorDetail {
	e.Details = details
	return e
}

// WithCode returns the ErrorDetail with the given code attached.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}
