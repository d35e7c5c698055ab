package ffi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cotw-fabier/rhai-dart-sub001/config"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/engine"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/abi"
	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

// Callback is the host entry point for synchronous callbacks. args is a
// buffer holding the JSON argument array, owned by the host. The callback
// returns a buffer holding an envelope, owned by the core from then on.
type Callback func(callbackID uint64, args abi.Handle) abi.Handle

// EngineConfig is the JSON form of an engine configuration. Durations are
// milliseconds. Absent fields keep their secure defaults.
type EngineConfig struct {
	ModuleRoot         string `json:"module_root,omitempty"`
	MaxOperations      uint64 `json:"max_operations"`
	MaxStackDepth      int    `json:"max_stack_depth"`
	MaxStringLength    int    `json:"max_string_length"`
	TimeoutMs          int64  `json:"timeout_ms"`
	AsyncTimeoutMs     int64  `json:"async_timeout_ms"`
	MaxConcurrentEvals int64  `json:"max_concurrent_evals"`
	StrictPayloads     bool   `json:"strict_payloads"`
	DisableFileIO      bool   `json:"disable_file_io"`
	DisableEval        bool   `json:"disable_eval"`
	DisableModules     bool   `json:"disable_modules"`
}

func configFromJSON(data []byte) (config.Engine, error) {
	d := config.Defaults()
	w := EngineConfig{
		ModuleRoot:         d.ModuleRoot,
		MaxOperations:      d.MaxOperations,
		MaxStackDepth:      d.MaxStackDepth,
		MaxStringLength:    d.MaxStringLength,
		TimeoutMs:          d.Timeout.Milliseconds(),
		AsyncTimeoutMs:     d.AsyncTimeout.Milliseconds(),
		MaxConcurrentEvals: d.MaxConcurrentEvals,
		StrictPayloads:     d.StrictPayloads,
		DisableFileIO:      d.DisableFileIO,
		DisableEval:        d.DisableEval,
		DisableModules:     d.DisableModules,
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &w); err != nil {
			return config.Engine{}, &errors.ConfigError{Err: err}
		}
	}
	return config.Engine{
		ModuleRoot:         w.ModuleRoot,
		MaxOperations:      w.MaxOperations,
		MaxStackDepth:      w.MaxStackDepth,
		MaxStringLength:    w.MaxStringLength,
		Timeout:            time.Duration(w.TimeoutMs) * time.Millisecond,
		AsyncTimeout:       time.Duration(w.AsyncTimeoutMs) * time.Millisecond,
		MaxConcurrentEvals: w.MaxConcurrentEvals,
		StrictPayloads:     w.StrictPayloads,
		DisableFileIO:      w.DisableFileIO,
		DisableEval:        w.DisableEval,
		DisableModules:     w.DisableModules,
	}, nil
}

// callbackDispatcher moves arguments and envelopes through tracked buffers.
type callbackDispatcher struct {
	cb Callback
}

func (d callbackDispatcher) Dispatch(callbackID uint64, args []byte) []byte {
	h, err := buffers.Allocate(args)
	if err != nil {
		return wireformat.Failure(err).Marshal()
	}
	out := d.cb(callbackID, h)
	if out == 0 {
		return wireformat.Failure(&errors.BoundaryError{Op: "callback", Err: errEmptyEnvelope}).Marshal()
	}
	env, ok := buffers.Take(out)
	if !ok {
		return wireformat.Failure(&errors.BoundaryError{Op: "callback", Err: errUnknownBuffer}).Marshal()
	}
	return env
}

// EngineNew creates an engine from a JSON configuration. An empty config
// selects the secure defaults.
func EngineNew(configJSON []byte, cb Callback) (handle uint64, st Status) {
	st = guard("engine_new", func() Status {
		if cb == nil {
			return fail(&errors.ConfigError{Field: "callback", Err: errNilCallback})
		}
		cfg, err := configFromJSON(configJSON)
		if err != nil {
			return fail(err)
		}
		e, err := engine.Default().NewEngine(cfg, callbackDispatcher{cb: cb})
		if err != nil {
			return fail(err)
		}
		handle = e.ID()
		return StatusOK
	})
	return handle, st
}

// EngineFree disposes an engine. Freeing an unknown or freed handle is a
// no-op.
func EngineFree(handle uint64) Status {
	return guard("engine_free", func() Status {
		e, err := engine.Default().Engine(handle)
		if err != nil {
			return StatusOK
		}
		if err := e.Close(); err != nil {
			return fail(err)
		}
		return StatusOK
	})
}

func lookup(handle uint64) (*engine.Engine, error) {
	e, err := engine.Default().Engine(handle)
	if err != nil {
		return nil, errors.ErrDisposed
	}
	return e, nil
}

// RegisterFunction binds a script-visible name to a callback id.
func RegisterFunction(handle uint64, name string, callbackID uint64) Status {
	return guard("register_function", func() Status {
		e, err := lookup(handle)
		if err != nil {
			return fail(err)
		}
		if err := e.RegisterFunction(name, callbackID); err != nil {
			return fail(err)
		}
		return StatusOK
	})
}

// SetConstant exposes a read-only global decoded from valueJSON.
func SetConstant(handle uint64, name string, valueJSON []byte) Status {
	return guard("set_constant", func() Status {
		e, err := lookup(handle)
		if err != nil {
			return fail(err)
		}
		v, err := wireformat.DecodeValue(valueJSON)
		if err != nil {
			return fail(err)
		}
		if err := e.SetConstant(name, v); err != nil {
			return fail(err)
		}
		return StatusOK
	})
}

// Eval runs script synchronously. The result buffer holds an envelope:
// success with the value, or error with the detail also kept in LastError.
func Eval(handle uint64, script string) (result abi.Handle, st Status) {
	st = guard("eval", func() Status {
		e, err := lookup(handle)
		if err != nil {
			return fail(err)
		}
		v, evalErr := e.Eval(context.Background(), script)
		if result, err = buffers.Allocate(wireformat.Result(v, evalErr).Marshal()); err != nil {
			return fail(err)
		}
		if evalErr != nil {
			return fail(evalErr)
		}
		return StatusOK
	})
	return result, st
}

// EvalAsyncStart starts an async evaluation and returns its eval id.
func EvalAsyncStart(handle uint64, script string) (evalID uint64, st Status) {
	st = guard("eval_async_start", func() Status {
		e, err := lookup(handle)
		if err != nil {
			return fail(err)
		}
		if evalID, err = e.EvalAsync(script); err != nil {
			return fail(err)
		}
		return StatusOK
	})
	return evalID, st
}

// EvalAsyncPoll reads an async evaluation without blocking. The result
// buffer holds {eval_id, status, value | error}. A terminal state is
// returned once; later polls report StatusNotFound.
func EvalAsyncPoll(evalID uint64) (result abi.Handle, st Status) {
	st = guard("eval_async_poll", func() Status {
		status, err := engine.Default().Poll(evalID)
		if err != nil {
			return fail(err)
		}
		if result, err = allocJSON(wireformat.PollToWire(status)); err != nil {
			return fail(err)
		}
		return StatusOK
	})
	return result, st
}

// EvalAsyncCancel cancels a running async evaluation. A finished or unknown
// evaluation reports StatusNotFound.
func EvalAsyncCancel(evalID uint64) Status {
	return guard("eval_async_cancel", func() Status {
		if err := engine.Default().Cancel(evalID); err != nil {
			return fail(err)
		}
		return StatusOK
	})
}

// GetPendingFunctionRequest pops the oldest function-call request. It
// reports StatusEmpty when none is waiting.
func GetPendingFunctionRequest() (request abi.Handle, st Status) {
	st = guard("get_pending_function_request", func() Status {
		req, ok := engine.Default().PendingRequest()
		if !ok {
			return StatusEmpty
		}
		var err error
		if request, err = allocJSON(wireformat.RequestToWire(req)); err != nil {
			// the request is already dequeued; answer it so the worker unwinds
			_ = engine.Default().ProvideResult(req.ExecID, wireformat.Failure(err).Marshal())
			return fail(err)
		}
		return StatusOK
	})
	return request, st
}

// ProvideFunctionResult answers a function-call request with an envelope.
func ProvideFunctionResult(execID uint64, envelope []byte) Status {
	return guard("provide_function_result", func() Status {
		if err := engine.Default().ProvideResult(execID, envelope); err != nil {
			return fail(err)
		}
		return StatusOK
	})
}

// CompleteFuture delivers the envelope of a deferred synchronous-path
// result. An unknown id reports StatusNotFound and changes nothing.
func CompleteFuture(futureID uint64, envelope []byte) Status {
	return guard("complete_future", func() Status {
		if err := engine.Default().CompleteFuture(futureID, envelope); err != nil {
			return fail(err)
		}
		return StatusOK
	})
}

// AwaitFuture blocks until the deferred result behind a mode mismatch is
// completed and returns its envelope. It must start before CompleteFuture
// for that id; otherwise it reports StatusNotFound.
func AwaitFuture(handle uint64, futureID uint64) (result abi.Handle, st Status) {
	st = guard("await_future", func() Status {
		e, err := lookup(handle)
		if err != nil {
			return fail(err)
		}
		v, awaitErr := e.AwaitDeferred(context.Background(), futureID)
		if awaitErr != nil {
			return fail(awaitErr)
		}
		if result, err = buffers.Allocate(wireformat.Result(v, nil).Marshal()); err != nil {
			return fail(err)
		}
		return StatusOK
	})
	return result, st
}

// Analyze checks script without running it. The result buffer holds
// {valid, syntax_errors, warnings}.
func Analyze(handle uint64, script string) (result abi.Handle, st Status) {
	st = guard("analyze", func() Status {
		e, err := lookup(handle)
		if err != nil {
			return fail(err)
		}
		if result, err = allocJSON(e.Analyze(script)); err != nil {
			return fail(err)
		}
		return StatusOK
	})
	return result, st
}

// WireSchema returns the JSON schema of a boundary payload kind.
func WireSchema(kind string) (result abi.Handle, st Status) {
	st = guard("wire_schema", func() Status {
		reg, err := engine.Default().Schemas()
		if err != nil {
			return fail(err)
		}
		schema, ok := reg.Schema(kind)
		if !ok {
			return fail(&errors.SchemaError{Type: kind, Err: errUnknownKind})
		}
		if result, err = buffers.Allocate(schema); err != nil {
			return fail(err)
		}
		return StatusOK
	})
	return result, st
}

// Stats reports the live table sizes of the default bridge as JSON.
func Stats() (result abi.Handle, st Status) {
	st = guard("stats", func() Status {
		var err error
		if result, err = allocJSON(engine.Default().Stats()); err != nil {
			return fail(err)
		}
		return StatusOK
	})
	return result, st
}
