package ffi

import (
	"encoding/json"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/abi"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/testutil"
	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

// hostCallback answers callbacks the way a foreign host would: it reads and
// frees the argument buffer and allocates the envelope buffer.
func hostCallback(t *testing.T, funcs map[uint64]func([]any) wireformat.Envelope) Callback {
	return func(callbackID uint64, args abi.Handle) abi.Handle {
		data, st := ReadBuffer(args)
		require.Equal(t, StatusOK, st)
		require.Equal(t, StatusOK, FreeBuffer(args))

		decoded, err := wireformat.DecodeArgs(data)
		require.NoError(t, err)
		h, st := AllocBuffer(funcs[callbackID](decoded).Marshal())
		require.Equal(t, StatusOK, st)
		return h
	}
}

func takeBuffer(t *testing.T, h abi.Handle) []byte {
	t.Helper()
	data, st := ReadBuffer(h)
	require.Equal(t, StatusOK, st)
	require.Equal(t, StatusOK, FreeBuffer(h))
	return data
}

func takeLastError(t *testing.T) *entities.ErrorDetail {
	t.Helper()
	h := LastError()
	require.NotZero(t, h, "no error recorded")
	var d entities.ErrorDetail
	require.NoError(t, json.Unmarshal(takeBuffer(t, h), &d))
	return &d
}

func newEngine(t *testing.T, cfg string) uint64 {
	t.Helper()
	cb := hostCallback(t, map[uint64]func([]any) wireformat.Envelope{
		1: func(args []any) wireformat.Envelope {
			return wireformat.Result(args[0].(int64)+args[1].(int64), nil)
		},
		2: func([]any) wireformat.Envelope {
			return wireformat.Failure(stdErrors.New("boom"))
		},
		3: func([]any) wireformat.Envelope {
			panic("host side panic")
		},
	})
	h, st := EngineNew([]byte(cfg), cb)
	require.Equal(t, StatusOK, st)
	t.Cleanup(func() { EngineFree(h) })

	require.Equal(t, StatusOK, RegisterFunction(h, "add", 1))
	require.Equal(t, StatusOK, RegisterFunction(h, "fail", 2))
	require.Equal(t, StatusOK, RegisterFunction(h, "explode", 3))
	return h
}

func TestEval_Sync(t *testing.T) {
	count, _ := BufferStats()
	h := newEngine(t, `{"timeout_ms": 2000}`)

	res, st := Eval(h, "add(2, 3)")
	require.Equal(t, StatusOK, st)
	env, err := wireformat.ParseEnvelope(takeBuffer(t, res))
	require.NoError(t, err)
	v, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	after, _ := BufferStats()
	assert.Equal(t, count, after, "buffers leaked")
}

func TestEval_Errors(t *testing.T) {
	h := newEngine(t, "")

	tests := []struct {
		name     string
		script   string
		wantType string
		contains string
	}{
		{"host error", "fail()", errors.TypeRuntime, "boom"},
		{"syntax", "1 +", errors.TypeSyntax, "Syntax error at line 1"},
		{"host panic", "explode()", errors.TypeBoundary, "host side panic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, st := Eval(h, tt.script)
			require.Equal(t, StatusError, st)

			env, err := wireformat.ParseEnvelope(takeBuffer(t, res))
			require.NoError(t, err)
			assert.Equal(t, wireformat.StatusError, env.Status)
			assert.Equal(t, tt.wantType, env.Error.Type)
			assert.Contains(t, env.Error.Message, tt.contains)

			d := takeLastError(t)
			assert.Equal(t, tt.wantType, d.Type)
		})
	}
}

func TestEvalAsync_Protocol(t *testing.T) {
	h := newEngine(t, "")

	evalID, st := EvalAsyncStart(h, "add(20, 22)")
	require.Equal(t, StatusOK, st)

	var req wireformat.FunctionCallRequestWire
	testutil.WaitFor(t, time.Second, func() bool {
		rh, st := GetPendingFunctionRequest()
		if st == StatusEmpty {
			return false
		}
		require.Equal(t, StatusOK, st)
		require.NoError(t, json.Unmarshal(takeBuffer(t, rh), &req))
		return true
	})
	assert.Equal(t, "add", req.Function)
	assert.Equal(t, evalID, req.EvalID)
	testutil.AssertJSONEqual(t, "[20, 22]", string(req.Args))

	assert.Equal(t, StatusOK, ProvideFunctionResult(req.ExecID, wireformat.Result(42, nil).Marshal()))
	assert.Equal(t, StatusNotFound, ProvideFunctionResult(req.ExecID, wireformat.Result(42, nil).Marshal()))

	var poll wireformat.EvalPollWire
	testutil.WaitFor(t, time.Second, func() bool {
		ph, st := EvalAsyncPoll(evalID)
		require.Equal(t, StatusOK, st)
		require.NoError(t, json.Unmarshal(takeBuffer(t, ph), &poll))
		return poll.Status.Terminal()
	})
	assert.Equal(t, entities.EvalSuccess, poll.Status)
	testutil.AssertJSONEqual(t, "42", string(poll.Value))

	_, st = EvalAsyncPoll(evalID)
	assert.Equal(t, StatusNotFound, st)
	assert.Equal(t, StatusNotFound, EvalAsyncCancel(evalID))
	LastError()
}

func TestEngineFree_Idempotent(t *testing.T) {
	h := newEngine(t, "")

	assert.Equal(t, StatusOK, EngineFree(h))
	assert.Equal(t, StatusOK, EngineFree(h))

	_, st := Eval(h, "1")
	assert.Equal(t, StatusDisposed, st)
	assert.Equal(t, StatusDisposed, RegisterFunction(h, "x", 9))
	_, st = EvalAsyncStart(h, "1")
	assert.Equal(t, StatusDisposed, st)
	assert.Equal(t, "disposed", takeLastError(t).Code)
}

func TestCompleteFuture_Unknown(t *testing.T) {
	assert.Equal(t, StatusNotFound, CompleteFuture(987654321, wireformat.Result(1, nil).Marshal()))
	assert.True(t, takeLastError(t).IsNotFound)
}

func TestAwaitFuture_AfterModeMismatch(t *testing.T) {
	const futureID = 777001
	cb := hostCallback(t, map[uint64]func([]any) wireformat.Envelope{
		1: func([]any) wireformat.Envelope { return wireformat.Pending(futureID) },
	})
	h, st := EngineNew(nil, cb)
	require.Equal(t, StatusOK, st)
	defer EngineFree(h)
	require.Equal(t, StatusOK, RegisterFunction(h, "later", 1))

	res, st := Eval(h, "later()")
	require.Equal(t, StatusError, st)
	takeBuffer(t, res)
	assert.Equal(t, errors.TypeModeMismatch, takeLastError(t).Type)

	time.AfterFunc(20*time.Millisecond, func() {
		CompleteFuture(futureID, wireformat.Result("done", nil).Marshal())
	})
	res, st = AwaitFuture(h, futureID)
	require.Equal(t, StatusOK, st)
	env, err := wireformat.ParseEnvelope(takeBuffer(t, res))
	require.NoError(t, err)
	v, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	_, st = AwaitFuture(h, futureID)
	assert.Equal(t, StatusNotFound, st)
	takeLastError(t)
}

func TestEngineNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  string
	}{
		{"malformed", "{"},
		{"negative stack", `{"max_stack_depth": -1}`},
		{"modules without root", `{"disable_modules": false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, st := EngineNew([]byte(tt.cfg), func(uint64, abi.Handle) abi.Handle { return 0 })
			require.Equal(t, StatusError, st)
			assert.Equal(t, errors.TypeConfig, takeLastError(t).Type)
		})
	}

	_, st := EngineNew(nil, nil)
	assert.Equal(t, StatusError, st)
	LastError()
}

func TestBuffers(t *testing.T) {
	h, st := AllocBuffer([]byte("hello"))
	require.Equal(t, StatusOK, st)

	data, st := ReadBuffer(h)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, "hello", string(data))

	assert.Equal(t, StatusOK, FreeBuffer(h))
	assert.Equal(t, StatusError, FreeBuffer(h))
	_, st = ReadBuffer(h)
	assert.Equal(t, StatusError, st)
	assert.Equal(t, StatusOK, FreeBuffer(0))
	LastError()
}

func TestWireSchemaAndAnalyze(t *testing.T) {
	sh, st := WireSchema(wireformat.KindEnvelope)
	require.Equal(t, StatusOK, st)
	assert.Contains(t, string(takeBuffer(t, sh)), "future_id")

	_, st = WireSchema("nope")
	assert.Equal(t, StatusError, st)
	LastError()

	h := newEngine(t, "")
	ah, st := Analyze(h, "let x = ;")
	require.Equal(t, StatusOK, st)
	var a entities.Analysis
	require.NoError(t, json.Unmarshal(takeBuffer(t, ah), &a))
	assert.False(t, a.Valid)
	assert.NotEmpty(t, a.SyntaxErrors)
}

func TestGuard_RecoversPanic(t *testing.T) {
	st := guard("test_op", func() Status { panic("core bug") })
	assert.Equal(t, StatusError, st)

	d := takeLastError(t)
	assert.Equal(t, errors.TypeBoundary, d.Type)
	assert.Equal(t, "test_op", d.Code)
	assert.NotEmpty(t, d.Stack)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "unknown", Status(99).String())
}
