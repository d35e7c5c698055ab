// Package errors provides the error taxonomy of the bridge.
// All error types support error unwrapping via errors.As() and errors.Is(),
// and convert to and from the wire ErrorDetail.
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// Error types carried in ErrorDetail.Type.
const (
	TypeSyntax       = "syntax"
	TypeRuntime      = "runtime"
	TypeBoundary     = "boundary"
	TypeTimeout      = "timeout"
	TypeModeMismatch = "mode_mismatch"
	TypeCancelled    = "cancelled"
	TypeConfig       = "config"
	TypeValidation   = "validation"
	TypeInternal     = "internal"
)

// Sentinel errors. Lookups that miss are benign and carry IsNotFound on the wire.
var (
	ErrDisposed        = stdErrors.New("engine disposed")
	ErrEngineNotFound  = stdErrors.New("engine not found")
	ErrEvalNotFound    = stdErrors.New("eval session not found")
	ErrRequestNotFound = stdErrors.New("function call request not found")
	ErrFutureNotFound  = stdErrors.New("future not found")
	ErrCancelled       = stdErrors.New("evaluation cancelled")
)

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
// This function recognizes custom error types and categorizes them appropriately.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	switch {
	case stdErrors.Is(err, ErrDisposed):
		return &entities.ErrorDetail{Message: err.Error(), Type: TypeBoundary, Code: "disposed"}
	case stdErrors.Is(err, ErrCancelled):
		return &entities.ErrorDetail{Message: err.Error(), Type: TypeCancelled}
	case stdErrors.Is(err, ErrEngineNotFound), stdErrors.Is(err, ErrEvalNotFound),
		stdErrors.Is(err, ErrRequestNotFound), stdErrors.Is(err, ErrFutureNotFound):
		return &entities.ErrorDetail{Message: err.Error(), Type: TypeBoundary, Code: "not_found", IsNotFound: true}
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    TypeInternal,
	}
}

// FromErrorDetail rebuilds a typed error from its wire form.
func FromErrorDetail(d *entities.ErrorDetail) error {
	if d == nil {
		return nil
	}
	reason := d.Message
	if r, ok := d.Details["reason"].(string); ok {
		reason = r
	}

	switch d.Type {
	case TypeSyntax:
		return &SyntaxError{Message: reason, Line: d.Line}
	case TypeRuntime:
		return &RuntimeError{Message: reason, Line: d.Line, Stack: d.Stack, Origin: d.Origin}
	case TypeTimeout:
		return &TimeoutError{Operation: d.Code, Target: d.Origin, message: d.Message}
	case TypeModeMismatch:
		return &ModeMismatchError{Function: d.Origin}
	case TypeCancelled:
		return ErrCancelled
	case TypeBoundary:
		switch d.Code {
		case "disposed":
			return ErrDisposed
		case "not_found":
			return fmt.Errorf("%s: %w", d.Message, notFoundSentinel(d.Message))
		}
		return &BoundaryError{Op: d.Code, Err: stdErrors.New(reason), Stack: d.Stack}
	}
	return d
}

func notFoundSentinel(msg string) error {
	for _, s := range []error{ErrEngineNotFound, ErrEvalNotFound, ErrRequestNotFound, ErrFutureNotFound} {
		if s.Error() == msg {
			return s
		}
	}
	return ErrEvalNotFound
}

// SyntaxError reports a script that failed to parse.
type SyntaxError struct {
	Message string
	Line    int
	Column  int
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("Syntax error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("Syntax error: %s", e.Message)
}

// ToErrorDetail implements DetailedError.
func (e *SyntaxError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    TypeSyntax,
		Line:    e.Line,
		Details: map[string]any{"reason": e.Message},
	}
}

// RuntimeError reports a script that failed while running. Origin is set
// when the failure was raised by a host callback.
type RuntimeError struct {
	Err     error
	Message string
	Origin  string
	Stack   string
	Line    int
}

func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Origin != "" {
		msg = fmt.Sprintf("raised from host callback '%s': %s", e.Origin, msg)
	}
	if e.Line > 0 {
		return fmt.Sprintf("Runtime error at line %d: %s", e.Line, msg)
	}
	return fmt.Sprintf("Runtime error: %s", msg)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// FromHost reports whether a host callback raised the error.
func (e *RuntimeError) FromHost() bool {
	return e.Origin != ""
}

// ToErrorDetail implements DetailedError.
func (e *RuntimeError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    TypeRuntime,
		Origin:  e.Origin,
		Stack:   e.Stack,
		Line:    e.Line,
		Details: map[string]any{"reason": e.Message},
	}
}

// BoundaryError reports a failure at the boundary itself: a recovered panic,
// an allocation failure or a malformed payload.
type BoundaryError struct {
	Err   error
	Panic any
	Op    string
	Stack string
}

func (e *BoundaryError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Panic)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BoundaryError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *BoundaryError) ToErrorDetail() *entities.ErrorDetail {
	reason := fmt.Sprint(e.Panic)
	if e.Panic == nil {
		reason = fmt.Sprint(e.Err)
	}
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    TypeBoundary,
		Code:    e.Op,
		Stack:   e.Stack,
		Details: map[string]any{"reason": reason},
	}
}

// TimeoutError represents a timeout during an operation.
type TimeoutError struct {
	Operation string
	Target    string
	message   string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.message != "" {
		return e.message
	}
	if e.Target != "" {
		return fmt.Sprintf("%s timed out after %v (target: %s)", e.Operation, e.Duration, e.Target)
	}
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message:   e.Error(),
		Type:      TypeTimeout,
		Code:      e.Operation,
		Origin:    e.Target,
		IsTimeout: true,
	}
}

// ModeMismatchError reports an async-capable host function called from a
// synchronous evaluation.
type ModeMismatchError struct {
	Function string
	FutureID uint64
}

func (e *ModeMismatchError) Error() string {
	return fmt.Sprintf("host function '%s' returned a deferred result during synchronous evaluation; use the async evaluation entry point", e.Function)
}

// ToErrorDetail implements DetailedError.
func (e *ModeMismatchError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    TypeModeMismatch,
		Origin:  e.Function,
	}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: TypeConfig, Code: e.Field}
}

// SchemaError represents a payload that failed schema validation.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: TypeValidation, Code: "schema"}
}

// MemoryError represents a boundary buffer allocation failure.
type MemoryError struct {
	Requested int
	Current   int
	Limit     int
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory allocation failed: requested %d bytes, current %d bytes, limit %d bytes",
		e.Requested, e.Current, e.Limit)
}

// ToErrorDetail implements DetailedError.
func (e *MemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: TypeBoundary, Code: "memory_limit"}
}

// WireFormatError represents a wire format encoding/decoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Type, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: TypeInternal, Code: "wire_format"}
}
