package engine

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/callmode"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/ids"
	"github.com/cotw-fabier/rhai-dart-sub001/log"
	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

// evalScope is the state of one evaluation. It is owned by the goroutine
// running the evaluation and never shared.
type evalScope struct {
	ctx      context.Context
	engine   *Engine
	vm       *goja.Runtime
	mismatch *errors.ModeMismatchError
	budget   *execBudget
	mode     callmode.Scope
	evalID   uint64
}

func (e *Engine) newScope(ctx context.Context, evalID uint64, budget *execBudget) (*evalScope, error) {
	funcs, consts := e.snapshot()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if e.cfg.MaxStackDepth > 0 {
		vm.SetMaxCallStackSize(e.cfg.MaxStackDepth)
	}

	s := &evalScope{ctx: ctx, engine: e, vm: vm, evalID: evalID, budget: budget}

	global := vm.GlobalObject()
	for name, value := range consts {
		if err := global.DefineDataProperty(name, vm.ToValue(value), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return nil, err
		}
	}
	for name, id := range funcs {
		if err := vm.Set(name, s.binding(name, id)); err != nil {
			return nil, err
		}
	}
	if e.cfg.DisableEval {
		if err := global.Delete("eval"); err != nil {
			return nil, err
		}
	}
	if !e.cfg.DisableModules || !e.cfg.DisableFileIO {
		if err := s.enableRequire(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// enableRequire installs require() for modules under ModuleRoot and the
// console module when file I/O is allowed.
func (s *evalScope) enableRequire() error {
	cfg := s.engine.cfg
	loader := func(string) ([]byte, error) {
		return nil, require.ModuleFileDoesNotExistError
	}
	if !cfg.DisableModules {
		loader = s.engine.loadModule
	}

	registry := require.NewRegistry(require.WithLoader(loader))
	if !cfg.DisableFileIO {
		registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(log.NewConsolePrinter(s.engine.log, s.engine.id)))
	}
	registry.Enable(s.vm)
	if !cfg.DisableFileIO {
		console.Enable(s.vm)
	}
	if cfg.DisableModules {
		return s.vm.GlobalObject().Delete("require")
	}
	return nil
}

// loadModule reads a module source file below ModuleRoot.
func (e *Engine) loadModule(path string) ([]byte, error) {
	root, err := filepath.Abs(e.cfg.ModuleRoot)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(root, filepath.FromSlash(path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, require.IllegalModuleNameError
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, require.ModuleFileDoesNotExistError
		}
		return nil, err
	}
	return data, nil
}

// binding returns the script-visible function for a registered name.
// Errors are thrown into the script as Go errors so classify can recover
// their type.
func (s *evalScope) binding(name string, callbackID uint64) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = export(a)
		}
		if err := s.checkValue(args); err != nil {
			s.throw(err)
		}
		payload, err := wireformat.EncodeArgs(args)
		if err != nil {
			s.throw(err)
		}

		var value any
		if s.mode.Mode() == callmode.Request {
			value, err = s.request(name, payload)
		} else {
			value, err = s.direct(name, callbackID, payload)
		}
		if err != nil {
			s.throw(err)
		}
		if err := s.checkValue(value); err != nil {
			s.throw(err)
		}
		return s.vm.ToValue(value)
	}
}

func (s *evalScope) throw(err error) {
	panic(s.vm.NewGoError(err))
}

// direct invokes the host dispatcher in place. A pending envelope cannot be
// awaited here: the token is registered so the late completion is
// reclaimed, and the evaluation is marked as a mode mismatch.
func (s *evalScope) direct(name string, callbackID uint64, args []byte) (any, error) {
	raw, err := s.engine.dispatch(callbackID, args)
	if err != nil {
		return nil, err
	}
	if err := s.engine.bridge.checkPayload(s.engine.id, raw); err != nil {
		return nil, &errors.BoundaryError{Op: "callback " + name, Err: err}
	}
	env, err := wireformat.ParseEnvelope(raw)
	if err != nil {
		return nil, &errors.BoundaryError{Op: "callback " + name, Err: err}
	}

	switch env.Status {
	case wireformat.StatusPending:
		if err := s.engine.trackFuture(env.FutureID); err != nil {
			if stdErrors.Is(err, errors.ErrDisposed) {
				return nil, err
			}
			s.engine.log.Warn("deferred result not tracked", zap.Uint64("future_id", env.FutureID), zap.Error(err))
		}
		s.mismatch = &errors.ModeMismatchError{Function: name, FutureID: env.FutureID}
		return nil, s.mismatch
	case wireformat.StatusError:
		return nil, hostError(name, env.Error)
	}
	return wireformat.DecodeValue(env.Value)
}

// request posts a function-call request and blocks until it is answered,
// times out, or the evaluation is cancelled.
func (s *evalScope) request(name string, args []byte) (any, error) {
	b := s.engine.bridge
	pc := b.requests.post(entities.FunctionCallRequest{
		ExecID:   ids.Exec.Next(),
		EngineID: s.engine.id,
		EvalID:   s.evalID,
		Function: name,
		Args:     args,
	})
	b.changed.broadcast()

	s.budget.pause()
	defer s.budget.resume()

	timeout := s.engine.cfg.EffectiveAsyncTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res callResult
	select {
	case res = <-pc.resp:
	case <-timer.C:
		if _, ok := b.requests.take(pc.req.ExecID); ok {
			return nil, &errors.TimeoutError{Operation: "async operation", Target: name, Duration: timeout}
		}
		// answered while the timer fired
		res = <-pc.resp
	case <-s.ctx.Done():
		if _, ok := b.requests.take(pc.req.ExecID); ok {
			return nil, ctxCause(s.ctx)
		}
		res = <-pc.resp
	}

	if res.err != nil {
		return nil, res.err
	}
	env, err := wireformat.ParseEnvelope(res.payload)
	if err != nil {
		return nil, &errors.BoundaryError{Op: "callback " + name, Err: err}
	}
	switch env.Status {
	case wireformat.StatusError:
		return nil, hostError(name, env.Error)
	case wireformat.StatusPending:
		return nil, &errors.BoundaryError{Op: "callback " + name, Err: wireformat.ErrPending}
	}
	return wireformat.DecodeValue(env.Value)
}

// dispatch calls the host dispatcher, converting a panic into a boundary error.
func (e *Engine) dispatch(callbackID uint64, args []byte) (raw []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errors.BoundaryError{Op: "callback dispatch", Panic: r, Stack: string(debug.Stack())}
		}
	}()
	return e.dispatcher.Dispatch(callbackID, args), nil
}

// hostError annotates a host-reported failure with the callback name.
func hostError(name string, d *entities.ErrorDetail) error {
	err := errors.FromErrorDetail(d)
	if re, ok := err.(*errors.RuntimeError); ok && re.FromHost() {
		return re
	}
	reason := d.Message
	if r, ok := d.Details["reason"].(string); ok {
		reason = r
	}
	return &errors.RuntimeError{Message: reason, Origin: name, Err: err}
}

// checkValue rejects values that cannot cross the boundary: cyclic or
// overly deep structures, and strings over the configured limit.
func (s *evalScope) checkValue(v any) error {
	limit := s.engine.cfg.MaxStringLength
	over := 0
	err := wireformat.VisitStrings(v, func(str string) bool {
		if limit > 0 && len(str) > limit {
			over = len(str)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if over > 0 {
		return &errors.RuntimeError{Message: fmt.Sprintf("string length %d exceeds limit %d", over, limit)}
	}
	return nil
}
