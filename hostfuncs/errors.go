package hostfuncs

import (
	"fmt"
	"runtime/debug"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// Machine-readable codes for host-side failures.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL_ERROR"
)

// NewValidationError creates an error for bad arguments.
func NewValidationError(message string) *entities.ErrorDetail {
	return entities.NewErrorDetail(errors.TypeValidation, message).WithCode(CodeValidation)
}

// NewNotFoundError creates an error for an unknown function.
func NewNotFoundError(name string) *entities.ErrorDetail {
	d := entities.NewErrorDetail(errors.TypeRuntime, "unknown host function: "+name).WithCode(CodeNotFound)
	d.IsNotFound = true
	d.Origin = name
	return d
}

// NewInternalError creates an error for unexpected failures.
func NewInternalError(message string) *entities.ErrorDetail {
	return entities.NewErrorDetail(errors.TypeInternal, message).WithCode(CodeInternal)
}

// NewPanicError converts a recovered panic into a boundary error.
func NewPanicError(name string, panicValue any) *errors.BoundaryError {
	var msg string
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return &errors.BoundaryError{
		Op:    "host function " + name,
		Panic: msg,
		Stack: string(debug.Stack()),
	}
}
