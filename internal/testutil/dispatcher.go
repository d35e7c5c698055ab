package testutil

import (
	"fmt"
	"sync"

	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

// Dispatcher is an in-memory callback dispatcher keyed by callback id.
type Dispatcher struct {
	funcs map[uint64]func(args []any) wireformat.Envelope
	calls map[uint64]int
	mu    sync.Mutex
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		funcs: make(map[uint64]func([]any) wireformat.Envelope),
		calls: make(map[uint64]int),
	}
}

// Handle installs fn for callbackID.
func (d *Dispatcher) Handle(callbackID uint64, fn func(args []any) wireformat.Envelope) *Dispatcher {
	d.mu.Lock()
	d.funcs[callbackID] = fn
	d.mu.Unlock()
	return d
}

// Value installs a callback that computes a value from its arguments.
func (d *Dispatcher) Value(callbackID uint64, fn func(args []any) (any, error)) *Dispatcher {
	return d.Handle(callbackID, func(args []any) wireformat.Envelope {
		return wireformat.Result(fn(args))
	})
}

// Calls reports how many times callbackID was dispatched.
func (d *Dispatcher) Calls(callbackID uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[callbackID]
}

// Dispatch implements ports.CallbackDispatcher.
func (d *Dispatcher) Dispatch(callbackID uint64, payload []byte) []byte {
	d.mu.Lock()
	fn, ok := d.funcs[callbackID]
	d.calls[callbackID]++
	d.mu.Unlock()

	if !ok {
		return wireformat.Failure(fmt.Errorf("callback %d not registered", callbackID)).Marshal()
	}
	args, err := wireformat.DecodeArgs(payload)
	if err != nil {
		return wireformat.Failure(err).Marshal()
	}
	return fn(args).Marshal()
}
