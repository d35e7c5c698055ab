// Package engine is the interpreter side of the bridge.
//
// A Bridge owns the shared tables: engines, the function-call request
// queue, async evaluation sessions and deferred-result tokens. An Engine is
// one configured interpreter scope; every evaluation gets a fresh goja
// runtime built from the engine's registered functions and constants.
//
// Evaluations run on one of two paths. Eval runs on the caller's goroutine
// and invokes host functions directly through a ports.CallbackDispatcher.
// EvalAsync runs on a worker goroutine in request mode: each host function
// call is posted to the request queue and the worker blocks until the host
// poll loop provides the result, the async timeout fires, or the session is
// cancelled.
package engine
