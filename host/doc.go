// Package host runs scripts against Go host functions on a cooperative
// event loop.
//
// A Runtime owns one engine, one host function registry and one
// goja_nodejs event loop. The loop is the host scheduler: host functions,
// Future callbacks and the async poll pump all run on it, one at a time.
//
// Synchronous evaluation (Eval, RunScript) calls host functions in place. A
// host function that returns a Deferred (for example a *Future from Delay or
// Go) cannot be awaited there and fails the evaluation with a mode-mismatch
// error. Asynchronous evaluation (EvalAsync, RunScriptAsync) runs the script
// on a worker goroutine; its host function calls come back to the loop as
// function-call requests, and deferred results are awaited on the loop
// without blocking it.
//
// Example:
//
//	rt, err := host.New()
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	_ = rt.Register("fetch", func(ctx context.Context, args []any) (any, error) {
//	    return rt.Delay(50*time.Millisecond, func() (any, error) { return "ok", nil }), nil
//	})
//	v, err := rt.RunScriptAsync(ctx, "fetch()")
package host
