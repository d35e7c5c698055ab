package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cotw-fabier/rhai-dart-sub001/config"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/engine"
	"github.com/cotw-fabier/rhai-dart-sub001/hostfuncs"
	"github.com/cotw-fabier/rhai-dart-sub001/log"
)

// Runtime is a script engine bound to an event loop. A Runtime that becomes
// unreachable without Close is disposed by the garbage collector once it
// has no outstanding work.
type Runtime struct {
	*runtime
}

type runtime struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	loop     *eventloop.EventLoop
	bridge   *engine.Bridge
	engine   *engine.Engine
	registry *hostfuncs.Registry
	log      *zap.Logger
	closed   chan struct{}

	// loop-confined
	calls    map[uint64]*Future
	fallback *eventloop.Timer

	pollInterval time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// New creates a runtime and starts its event loop.
func New(opts ...Option) (*Runtime, error) {
	o := options{pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := config.Defaults()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	l := log.Or(o.log)
	if o.bridge == nil {
		o.bridge = engine.NewBridge(engine.WithLogger(l))
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	r := &runtime{
		ctx:    ctx,
		cancel: cancel,
		bridge: o.bridge,
		log:    l.Named("host"),
		closed: make(chan struct{}),
		calls:  make(map[uint64]*Future),
		registry: hostfuncs.NewRegistry(hostfuncs.WithMiddleware(
			append([]hostfuncs.Middleware{
				hostfuncs.PanicRecoveryMiddleware(),
				hostfuncs.LoggingMiddleware(l.Named("hostfuncs")),
			}, o.middleware...)...,
		)),
		pollInterval: o.pollInterval,
	}

	e, err := r.bridge.NewEngine(cfg, r)
	if err != nil {
		cancel(err)
		return nil, err
	}
	r.engine = e

	for _, b := range o.bundles {
		if err := r.RegisterBundle(b); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	r.log.Debug("runtime started",
		zap.Uint64("engine_id", e.ID()),
		zap.Strings("functions", r.registry.Names()))

	r.loop = eventloop.NewEventLoop(eventloop.EnableConsole(false))
	r.loop.Start()
	go r.watch(r.bridge, r.loop, r.closed)

	rt := &Runtime{r}
	goruntime.AddCleanup(rt, func(r *runtime) {
		if err := r.Close(); err != nil {
			r.log.Warn("leaked runtime cleanup failed", zap.Error(err))
		}
	}, r)
	return rt, nil
}

// watch relays bridge change signals onto the loop.
func (r *runtime) watch(b *engine.Bridge, loop *eventloop.EventLoop, closed <-chan struct{}) {
	changed := b.Changed()
	for {
		select {
		case <-changed:
			changed = b.Changed()
			loop.RunOnLoop(func(*goja.Runtime) {
				r.pump()
			})
		case <-closed:
			return
		}
	}
}

// Engine returns the engine driven by the runtime.
func (r *runtime) Engine() *engine.Engine {
	return r.engine
}

// Bridge returns the bridge the runtime's engine belongs to.
func (r *runtime) Bridge() *engine.Bridge {
	return r.bridge
}

// Register makes fn callable from scripts under name.
func (r *runtime) Register(name string, fn hostfuncs.Func) error {
	id, err := r.registry.Register(name, fn)
	if err != nil {
		return err
	}
	if err := r.engine.RegisterFunction(name, id); err != nil {
		r.registry.Unregister(id)
		return err
	}
	return nil
}

// RegisterBundle registers every function of b. Either all of them are
// bound or none is.
func (r *runtime) RegisterBundle(b hostfuncs.Bundle) error {
	ids, err := r.registry.RegisterBundle(b)
	if err != nil {
		return fmt.Errorf("register bundle: %w", err)
	}
	bound := make([]string, 0, len(ids))
	for name, id := range ids {
		if err := r.engine.RegisterFunction(name, id); err != nil {
			for _, n := range bound {
				r.engine.UnregisterFunction(n)
			}
			for _, id := range ids {
				r.registry.Unregister(id)
			}
			return fmt.Errorf("register %q: %w", name, err)
		}
		bound = append(bound, name)
	}
	return nil
}

// Unregister removes a host function. Unknown names are ignored.
func (r *runtime) Unregister(name string) {
	r.engine.UnregisterFunction(name)
	if reg, ok := r.registry.LookupByName(name); ok {
		r.registry.Unregister(reg.ID)
	}
}

// Eval evaluates script synchronously. It must be called on the loop, for
// example from a Delay callback; use RunScript from other goroutines.
func (r *runtime) Eval(script string) (any, error) {
	return r.engine.Eval(r.ctx, script)
}

// EvalAsync starts an asynchronous evaluation and returns its Future. It
// must be called on the loop; use RunScriptAsync from other goroutines.
func (r *runtime) EvalAsync(script string) *Future {
	f := r.newFuture()
	evalID, err := r.engine.EvalAsync(script)
	if err != nil {
		f.settle(nil, err)
		return f
	}
	f.evalID = evalID
	r.calls[evalID] = f
	r.pump()
	return f
}

// RunScript evaluates script synchronously on the loop and waits for the
// result.
func (r *runtime) RunScript(ctx context.Context, script string) (any, error) {
	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	if err := r.do(ctx, func() {
		v, err := r.engine.Eval(ctx, script)
		ch <- result{v, err}
	}); err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-r.closed:
		return nil, errors.ErrDisposed
	}
}

// RunScriptAsync evaluates script asynchronously and waits for the result.
// Cancelling ctx cancels the evaluation.
func (r *runtime) RunScriptAsync(ctx context.Context, script string) (any, error) {
	ch := make(chan *Future, 1)
	if err := r.do(ctx, func() {
		ch <- r.EvalAsync(script)
	}); err != nil {
		return nil, err
	}

	var f *Future
	select {
	case f = <-ch:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-r.closed:
		return nil, errors.ErrDisposed
	}

	v, err := r.Await(ctx, f)
	if ctx.Err() != nil && f.evalID != 0 {
		_ = r.Cancel(f)
	}
	return v, err
}

// do schedules fn on the loop.
func (r *runtime) do(ctx context.Context, fn func()) error {
	select {
	case <-r.closed:
		return errors.ErrDisposed
	case <-ctx.Done():
		return context.Cause(ctx)
	default:
	}
	r.loop.RunOnLoop(func(*goja.Runtime) {
		fn()
	})
	return nil
}

// Delay returns a Future settled with fn's result after d. fn runs on the
// loop.
func (r *runtime) Delay(d time.Duration, fn func() (any, error)) *Future {
	f := r.newFuture()
	r.loop.SetTimeout(func(*goja.Runtime) {
		f.settle(fn())
	}, d)
	return f
}

// Go runs fn on a new goroutine and returns a Future settled on the loop
// with its result. fn's context is cancelled when the runtime closes.
func (r *runtime) Go(fn func(ctx context.Context) (any, error)) *Future {
	f := r.newFuture()
	go func() {
		v, err := fn(r.ctx)
		r.loop.RunOnLoop(func(*goja.Runtime) {
			f.settle(v, err)
		})
	}()
	return f
}

// Cancel cancels the asynchronous evaluation behind f. Its Future settles
// with ErrCancelled.
func (r *runtime) Cancel(f *Future) error {
	if f == nil || f.evalID == 0 {
		return stdErrors.New("future is not an async evaluation")
	}
	return r.bridge.Cancel(f.evalID)
}

// Close disposes the engine, settles outstanding evaluations with
// ErrDisposed and stops the loop. Close is idempotent and must not be
// called on the loop.
func (r *runtime) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.cancel(errors.ErrDisposed)

		var errs error
		if r.engine != nil {
			errs = multierr.Append(errs, r.engine.Close())
		}
		if r.loop != nil {
			done := make(chan struct{})
			r.loop.RunOnLoop(func(*goja.Runtime) {
				defer close(done)
				if r.fallback != nil {
					r.loop.ClearTimeout(r.fallback)
					r.fallback = nil
				}
				for id, f := range r.calls {
					delete(r.calls, id)
					f.settle(nil, errors.ErrDisposed)
				}
			})
			select {
			case <-done:
			case <-time.After(time.Second):
				errs = multierr.Append(errs, &errors.TimeoutError{Operation: "runtime close", Duration: time.Second})
			}
			r.loop.Stop()
		}
		r.registry.Close()
		r.closeErr = errs
		r.log.Debug("runtime closed", zap.Error(errs))
	})
	return r.closeErr
}
