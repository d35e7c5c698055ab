// Package callmode carries the callback routing mode of an evaluation.
//
// A worker running an async evaluation is in Request mode: every host
// function call goes through the request/response channel. Everything else
// runs in Direct mode and calls the host dispatcher in place.
package callmode

import "context"

// Mode selects how a script's host function calls are routed.
type Mode int

const (
	// Direct invokes the host dispatcher on the calling goroutine.
	Direct Mode = iota
	// Request posts a function-call request and waits for the host poll loop.
	Request
)

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Request:
		return "request"
	default:
		return "unknown"
	}
}

type modeKey struct{}

// With returns a copy of ctx carrying m.
func With(ctx context.Context, m Mode) context.Context {
	return context.WithValue(ctx, modeKey{}, m)
}

// From returns the mode carried by ctx, Direct if none.
func From(ctx context.Context) Mode {
	if ctx == nil {
		return Direct
	}
	if m, ok := ctx.Value(modeKey{}).(Mode); ok {
		return m
	}
	return Direct
}

// Scope is a mode slot owned by a single goroutine.
type Scope struct {
	mode Mode
}

// Enter switches the scope to m and returns the function restoring the
// previous mode. Callers defer it so every exit path resets the mode.
func (s *Scope) Enter(m Mode) (restore func()) {
	prev := s.mode
	s.mode = m
	return func() { s.mode = prev }
}

// Mode returns the current mode.
func (s *Scope) Mode() Mode {
	return s.mode
}
