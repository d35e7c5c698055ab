package engine

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/callmode"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/ids"
	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

// Eval runs script synchronously on the calling goroutine. Callbacks are
// dispatched in place; a callback answering with a deferred result fails
// the evaluation with ModeMismatchError.
func (e *Engine) Eval(ctx context.Context, script string) (result any, err error) {
	if e.closed.Load() {
		return nil, errors.ErrDisposed
	}
	defer recoverInto("eval", &err)

	ctx, cancel := e.evalContext(ctx, true)
	defer cancel(nil)

	return e.run(ctx, script, callmode.Direct, ids.Eval.Next(), nil)
}

// EvalAsync starts script on a worker goroutine and returns its eval id.
// Callbacks are posted as function-call requests and served by the host
// poll loop through PendingRequest and ProvideResult.
func (e *Engine) EvalAsync(script string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return 0, errors.ErrDisposed
	}

	evalID := ids.Eval.Next()
	ctx, cancel := e.evalContext(context.Background(), false)
	e.bridge.sessions.start(evalID, e.id, cancel)

	go e.runAsync(ctx, cancel, evalID, script)
	return evalID, nil
}

func (e *Engine) runAsync(ctx context.Context, cancel context.CancelCauseFunc, evalID uint64, script string) {
	defer cancel(nil)

	var (
		payload []byte
		err     error
	)
	func() {
		defer recoverInto("async eval", &err)

		if e.workers != nil {
			if err = e.workers.Acquire(ctx, 1); err != nil {
				err = ctxCause(ctx)
				return
			}
			defer e.workers.Release(1)
		}

		var budget *execBudget
		if e.cfg.Timeout > 0 {
			budget = newExecBudget(e.cfg.Timeout, func() {
				cancel(&errors.TimeoutError{Operation: "script execution", Duration: e.cfg.Timeout})
			})
			defer budget.stop()
		}

		var v any
		if v, err = e.run(ctx, script, callmode.Request, evalID, budget); err != nil {
			return
		}
		payload, err = wireformat.EncodeValue(v)
	}()

	if e.bridge.sessions.finish(evalID, payload, err) {
		e.bridge.changed.broadcast()
	}
	e.log.Debug("async eval finished", zap.Uint64("eval_id", evalID), zap.Error(err))
}

func (e *Engine) run(ctx context.Context, script string, mode callmode.Mode, evalID uint64, budget *execBudget) (any, error) {
	prg, err := compile(script)
	if err != nil {
		return nil, err
	}
	s, err := e.newScope(ctx, evalID, budget)
	if err != nil {
		return nil, &errors.BoundaryError{Op: "scope setup", Err: err}
	}
	restore := s.mode.Enter(mode)
	defer restore()

	return s.execute(prg)
}

// AwaitDeferred waits for the completion of a deferred result whose token a
// synchronous evaluation registered before failing with ModeMismatchError,
// and decodes it. It is how a host without an event loop consumes the
// value. The wait must start before the matching CompleteFuture.
func (e *Engine) AwaitDeferred(ctx context.Context, futureID uint64) (any, error) {
	if e.closed.Load() {
		return nil, errors.ErrDisposed
	}
	payload, err := e.bridge.futures.await(ctx, futureID)
	if err != nil {
		return nil, err
	}
	env, err := wireformat.ParseEnvelope(payload)
	if err != nil {
		return nil, &errors.BoundaryError{Op: "complete_future", Err: err}
	}
	return env.Decode()
}

// evalContext derives the context of one evaluation. It is cancelled with
// ErrDisposed when the engine closes. Synchronous evaluations are also
// bounded by the configured timeout; asynchronous ones get an execBudget
// instead.
func (e *Engine) evalContext(parent context.Context, bounded bool) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(e.ctx, func() {
		cancel(context.Cause(e.ctx))
	})
	if !bounded || e.cfg.Timeout <= 0 {
		return ctx, func(cause error) {
			stop()
			cancel(cause)
		}
	}

	tctx, tcancel := context.WithTimeoutCause(ctx, e.cfg.Timeout,
		&errors.TimeoutError{Operation: "script execution", Duration: e.cfg.Timeout})
	return tctx, func(cause error) {
		stop()
		cancel(cause)
		tcancel()
	}
}

// recoverInto converts a panic into a BoundaryError stored in *err.
func recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		*err = &errors.BoundaryError{Op: op, Panic: r, Stack: string(debug.Stack())}
	}
}
