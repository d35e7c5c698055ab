package engine

import (
	"context"
	stdErrors "errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cotw-fabier/rhai-dart-sub001/config"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/testutil"
	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

const (
	cbAdd uint64 = iota + 1
	cbFail
	cbDeferred
	cbPanic
	cbInf
	cbSlow
)

func newTestEngine(t *testing.T, mutate func(*config.Engine)) (*Bridge, *Engine, *testutil.Dispatcher) {
	t.Helper()

	d := testutil.NewDispatcher().
		Value(cbAdd, func(args []any) (any, error) {
			return args[0].(int64) + args[1].(int64), nil
		}).
		Value(cbFail, func([]any) (any, error) {
			return nil, stdErrors.New("boom")
		}).
		Handle(cbDeferred, func([]any) wireformat.Envelope {
			return wireformat.Pending(424242)
		}).
		Handle(cbPanic, func([]any) wireformat.Envelope {
			panic("host exploded")
		}).
		Value(cbInf, func([]any) (any, error) {
			return math.Inf(1), nil
		})

	cfg := config.Defaults()
	cfg.Timeout = 2 * time.Second
	cfg.AsyncTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	b := NewBridge()
	e, err := b.NewEngine(cfg, d)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	for name, id := range map[string]uint64{
		"add": cbAdd, "fail": cbFail, "later": cbDeferred,
		"explode": cbPanic, "inf": cbInf, "slow": cbSlow,
	} {
		require.NoError(t, e.RegisterFunction(name, id))
	}
	return b, e, d
}

func TestEngine_EvalDirect(t *testing.T) {
	_, e, _ := newTestEngine(t, nil)

	tests := []struct {
		name   string
		script string
		want   any
	}{
		{"literal", "1 + 1", int64(2)},
		{"callback", "add(2, 3)", int64(5)},
		{"nested callbacks", "add(add(1, 2), 3)", int64(6)},
		{"string", "'a' + 'b'", "ab"},
		{"undefined", "undefined", nil},
		{"infinity sentinel", "inf() > 1e308", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(context.Background(), tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_EvalErrors(t *testing.T) {
	_, e, _ := newTestEngine(t, nil)

	t.Run("host error carries origin", func(t *testing.T) {
		_, err := e.Eval(context.Background(), "fail()")
		var re *errors.RuntimeError
		require.ErrorAs(t, err, &re)
		assert.True(t, re.FromHost())
		assert.Equal(t, "fail", re.Origin)
		assert.Equal(t, 1, re.Line)
		assert.Contains(t, err.Error(), "raised from host callback 'fail': boom")
	})

	t.Run("host error can be caught by the script", func(t *testing.T) {
		got, err := e.Eval(context.Background(), "try { fail() } catch (e) { 'caught' }")
		require.NoError(t, err)
		assert.Equal(t, "caught", got)
	})

	t.Run("syntax error has line", func(t *testing.T) {
		_, err := e.Eval(context.Background(), "var a = 1;\nvar b = (;")
		var se *errors.SyntaxError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 2, se.Line)
		assert.Contains(t, err.Error(), "Syntax error at line 2")
	})

	t.Run("script throw has line", func(t *testing.T) {
		_, err := e.Eval(context.Background(), "\n\nthrow new Error('bad')")
		var re *errors.RuntimeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 3, re.Line)
		assert.False(t, re.FromHost())
		assert.Contains(t, re.Message, "bad")
	})

	t.Run("undefined reference", func(t *testing.T) {
		_, err := e.Eval(context.Background(), "missing()")
		var re *errors.RuntimeError
		require.ErrorAs(t, err, &re)
	})

	t.Run("dispatcher panic", func(t *testing.T) {
		_, err := e.Eval(context.Background(), "explode()")
		var be *errors.BoundaryError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "host exploded", be.Panic)
	})
}

func TestEngine_Timeout(t *testing.T) {
	_, e, _ := newTestEngine(t, func(c *config.Engine) { c.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := e.Eval(context.Background(), "while (true) {}")
	var te *errors.TimeoutError
	require.ErrorAs(t, err, &te)
	testutil.AssertDurationWithin(t, 50*time.Millisecond, time.Since(start), 500*time.Millisecond)
}

func TestEngine_CallerCancel(t *testing.T) {
	_, e, _ := newTestEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := e.Eval(ctx, "while (true) {}")
	assert.ErrorIs(t, err, errors.ErrCancelled)
}

func TestEngine_ModeMismatch(t *testing.T) {
	b, e, _ := newTestEngine(t, nil)

	_, err := e.Eval(context.Background(), "try { later() } catch (e) { 'swallowed' }")
	var mm *errors.ModeMismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, "later", mm.Function)
	assert.Equal(t, uint64(424242), mm.FutureID)
	assert.Equal(t, 1, b.Stats().Futures)

	time.AfterFunc(10*time.Millisecond, func() {
		assert.NoError(t, b.CompleteFuture(424242, wireformat.Result("ok", nil).Marshal()))
	})
	got, err := e.AwaitDeferred(context.Background(), 424242)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	assert.ErrorIs(t, b.CompleteFuture(424242, wireformat.Result("again", nil).Marshal()), errors.ErrFutureNotFound)
	assert.Equal(t, 0, b.Stats().Futures)
}

func TestEngine_DeferredDuringClose(t *testing.T) {
	var e *Engine
	d := testutil.NewDispatcher().Handle(cbDeferred, func([]any) wireformat.Envelope {
		require.NoError(t, e.Close())
		return wireformat.Pending(515151)
	})
	b := NewBridge()
	var err error
	e, err = b.NewEngine(config.Defaults(), d)
	require.NoError(t, err)
	require.NoError(t, e.RegisterFunction("later", cbDeferred))

	_, err = e.Eval(context.Background(), "later()")
	assert.ErrorIs(t, err, errors.ErrDisposed)
	assert.Equal(t, entities.BridgeStats{}, b.Stats(), "no token outlives the engine")
	assert.ErrorIs(t, b.CompleteFuture(515151, nil), errors.ErrFutureNotFound)
}

func TestEngine_FutureExpires(t *testing.T) {
	b, e, _ := newTestEngine(t, func(c *config.Engine) { c.AsyncTimeout = 150 * time.Millisecond })

	_, err := e.Eval(context.Background(), "later()")
	require.Error(t, err)

	_, err = e.AwaitDeferred(context.Background(), 424242)
	var te *errors.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "future completion", te.Operation)
	assert.ErrorIs(t, b.CompleteFuture(424242, wireformat.Result(1, nil).Marshal()), errors.ErrFutureNotFound)
}

func TestEngine_CompleteUnknownFuture(t *testing.T) {
	b := NewBridge()
	assert.ErrorIs(t, b.CompleteFuture(99, wireformat.Result(1, nil).Marshal()), errors.ErrFutureNotFound)
}

func TestEngine_Constants(t *testing.T) {
	_, e, _ := newTestEngine(t, nil)
	require.NoError(t, e.SetConstant("LIMIT", 10))

	got, err := e.Eval(context.Background(), "LIMIT = 5; LIMIT * 2")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got)
}

func TestEngine_SandboxDefaults(t *testing.T) {
	_, e, _ := newTestEngine(t, nil)

	for _, script := range []string{"eval('1')", "require('x')", "console.log('x')"} {
		_, err := e.Eval(context.Background(), script)
		assert.Error(t, err, script)
	}
}

func TestEngine_MaxStringLength(t *testing.T) {
	_, e, _ := newTestEngine(t, func(c *config.Engine) { c.MaxStringLength = 8 })

	_, err := e.Eval(context.Background(), "'x'.repeat(9)")
	var re *errors.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "exceeds limit 8")
}

const cyclicScript = "var a = {}; a.self = a; "

func TestEngine_CyclicValues(t *testing.T) {
	for _, limit := range []int{0, 1024} {
		t.Run(fmt.Sprintf("string limit %d", limit), func(t *testing.T) {
			_, e, d := newTestEngine(t, func(c *config.Engine) { c.MaxStringLength = limit })

			_, err := e.Eval(context.Background(), cyclicScript+"a")
			assert.ErrorIs(t, err, wireformat.ErrCyclicValue)

			_, err = e.Eval(context.Background(), cyclicScript+"add(a, 1)")
			var wfe *errors.WireFormatError
			require.ErrorAs(t, err, &wfe)
			assert.ErrorIs(t, err, wireformat.ErrCyclicValue)
			assert.Zero(t, d.Calls(cbAdd))

			got, err := e.Eval(context.Background(), "var s = {k: 1}; [s, s]")
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestEngine_Disposed(t *testing.T) {
	b, e, _ := newTestEngine(t, nil)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Eval(context.Background(), "1")
	assert.ErrorIs(t, err, errors.ErrDisposed)
	_, err = e.EvalAsync("1")
	assert.ErrorIs(t, err, errors.ErrDisposed)
	assert.ErrorIs(t, e.RegisterFunction("x", 1), errors.ErrDisposed)
	assert.Empty(t, e.Functions())

	_, err = b.Engine(e.ID())
	assert.ErrorIs(t, err, errors.ErrEngineNotFound)
}

func TestEngine_Analyze(t *testing.T) {
	_, e, _ := newTestEngine(t, nil)

	tests := []struct {
		name     string
		script   string
		valid    bool
		warnings int
	}{
		{"valid", "add(1, 2)", true, 0},
		{"invalid", "let = ;", false, 0},
		{"empty", "  ", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := e.Analyze(tt.script)
			assert.Equal(t, tt.valid, a.Valid)
			assert.Len(t, a.Warnings, tt.warnings)
			assert.Equal(t, !tt.valid, len(a.SyntaxErrors) > 0)
		})
	}
}

func TestBridge_Default(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestBridge_NewEngineValidation(t *testing.T) {
	b := NewBridge()

	_, err := b.NewEngine(config.Defaults(), nil)
	assert.Error(t, err)

	cfg := config.Defaults()
	cfg.MaxStackDepth = -1
	_, err = b.NewEngine(cfg, testutil.NewDispatcher())
	var ce *errors.ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, b.Stats().Engines)
}

func ExampleEngine_Eval() {
	d := testutil.NewDispatcher().Value(1, func(args []any) (any, error) {
		return args[0].(int64) * 2, nil
	})
	e, _ := NewBridge().NewEngine(config.Defaults(), d)
	defer e.Close()
	_ = e.RegisterFunction("double", 1)

	v, err := e.Eval(context.Background(), "double(21)")
	fmt.Println(v, err)
	// Output: 42 <nil>
}
