package host

import (
	"context"

	"github.com/dop251/goja"
)

// Future is a result settled on the runtime's event loop. Its callbacks run
// on the loop, never inline with Then, so a Future returned by a host
// function is always observed after the call that produced it has
// finished.
//
// Then must be called on the loop. Done and Result are safe from any
// goroutine.
type Future struct {
	rt        *runtime
	value     any
	err       error
	callbacks []func(any, error)
	done      chan struct{}
	evalID    uint64
	settled   bool
}

func (r *runtime) newFuture() *Future {
	return &Future{rt: r, done: make(chan struct{})}
}

// Then registers fn to run on the loop once the future settles.
func (f *Future) Then(fn func(value any, err error)) {
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		return
	}
	v, err := f.value, f.err
	f.rt.loop.RunOnLoop(func(*goja.Runtime) {
		fn(v, err)
	})
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled value. It must only be called after Done is
// closed.
func (f *Future) Result() (any, error) {
	return f.value, f.err
}

// settle must run on the loop. Later calls are ignored.
func (f *Future) settle(v any, err error) {
	if f.settled {
		return
	}
	f.settled = true
	f.value, f.err = v, err
	close(f.done)

	callbacks := f.callbacks
	f.callbacks = nil
	for _, fn := range callbacks {
		fn(v, err)
	}
}

// Await blocks until f settles or ctx is done. It must not be called on the
// loop.
func (r *runtime) Await(ctx context.Context, f *Future) (any, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
