package hostfuncs

import (
	"context"

	"github.com/cotw-fabier/rhai-dart-sub001/internal/callmode"
)

// HostContext wraps a standard context.Context with call-specific helpers.
// It exposes the invoked function name, the routing mode of the call and
// request-scoped values for middleware.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// Mode reports whether the call arrived directly or through the
	// request/response channel.
	Mode() callmode.Mode

	// ExecID returns the request id for request-mode calls, 0 otherwise.
	ExecID() uint64

	// SetValue stores a request-scoped value. Unlike context.WithValue,
	// this mutates the existing HostContext.
	SetValue(key, value any)

	// GetValue retrieves a request-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	values   map[any]any
	funcName string
	execID   uint64
}

// NewHostContext creates a HostContext for a direct call.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  callmode.With(ctx, callmode.Direct),
		funcName: funcName,
		values:   make(map[any]any),
	}
}

// NewRequestContext creates a HostContext for a call served from the
// request/response channel.
func NewRequestContext(ctx context.Context, funcName string, execID uint64) HostContext {
	return &hostContext{
		Context:  callmode.With(ctx, callmode.Request),
		funcName: funcName,
		execID:   execID,
		values:   make(map[any]any),
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) Mode() callmode.Mode {
	return callmode.From(c.Context)
}

func (c *hostContext) ExecID() uint64 {
	return c.execID
}

func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom extracts a HostContext from a context.Context.
// If the context is already a HostContext, it is returned directly.
// Otherwise, a new direct-call HostContext is created wrapping the given context.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}
