package host

import (
	stdErrors "errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/hostfuncs"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/ids"
	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

// Dispatch implements ports.CallbackDispatcher for synchronous evaluation.
// It runs on the loop. A Deferred result is announced with a pending
// envelope and completed through the bridge when it settles.
func (r *runtime) Dispatch(callbackID uint64, payload []byte) []byte {
	reg, ok := r.registry.LookupByID(callbackID)
	if !ok {
		return wireformat.Failure(hostfuncs.NewNotFoundError("callback")).Marshal()
	}
	args, err := wireformat.DecodeArgs(payload)
	if err != nil {
		return wireformat.Failure(err).Marshal()
	}

	v, err := reg.Func(hostfuncs.NewHostContext(r.ctx, reg.Name), args)
	if d, ok := v.(hostfuncs.Deferred); ok && err == nil {
		futureID := ids.Future.Next()
		d.Then(func(v any, err error) {
			if cerr := r.bridge.CompleteFuture(futureID, wireformat.Result(v, err).Marshal()); cerr != nil {
				r.log.Debug("deferred result dropped", zap.Uint64("future_id", futureID), zap.Error(cerr))
			}
		})
		return wireformat.Pending(futureID).Marshal()
	}
	return wireformat.Result(v, err).Marshal()
}

// pump serves this runtime's pending function-call requests and settles
// finished async evaluations. It runs on the loop and never blocks; while
// evaluations are outstanding it re-arms a fallback timer in case a wake
// signal is missed.
func (r *runtime) pump() {
	for {
		req, ok := r.bridge.PendingRequestFor(r.engine.ID())
		if !ok {
			break
		}
		r.serve(req)
	}

	for evalID, f := range r.calls {
		st, err := r.bridge.Poll(evalID)
		switch {
		case err != nil:
			delete(r.calls, evalID)
			if r.engine.Closed() {
				err = errors.ErrDisposed
			} else if stdErrors.Is(err, errors.ErrEvalNotFound) {
				err = errors.ErrCancelled
			}
			f.settle(nil, err)
		case st.State == entities.EvalError:
			delete(r.calls, evalID)
			f.settle(nil, st.Err)
		case st.State == entities.EvalSuccess:
			delete(r.calls, evalID)
			f.settle(wireformat.DecodeValue(st.Payload))
		}
	}

	if len(r.calls) > 0 && r.fallback == nil {
		r.fallback = r.loop.SetTimeout(func(*goja.Runtime) {
			r.fallback = nil
			r.pump()
		}, r.pollInterval)
	}
}

// serve runs the host function behind req and answers it, now or when its
// Deferred result settles.
func (r *runtime) serve(req entities.FunctionCallRequest) {
	reg, ok := r.registry.LookupByName(req.Function)
	if !ok {
		r.provide(req.ExecID, nil, hostfuncs.NewNotFoundError(req.Function))
		return
	}
	args, err := wireformat.DecodeArgs(req.Args)
	if err != nil {
		r.provide(req.ExecID, nil, err)
		return
	}

	v, err := reg.Func(hostfuncs.NewRequestContext(r.ctx, reg.Name, req.ExecID), args)
	if d, ok := v.(hostfuncs.Deferred); ok && err == nil {
		d.Then(func(v any, err error) {
			r.provide(req.ExecID, v, err)
		})
		return
	}
	r.provide(req.ExecID, v, err)
}

func (r *runtime) provide(execID uint64, v any, err error) {
	if perr := r.bridge.ProvideResult(execID, wireformat.Result(v, err).Marshal()); perr != nil {
		r.log.Debug("function result dropped", zap.Uint64("exec_id", execID), zap.Error(perr))
	}
}
