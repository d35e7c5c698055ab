package ports

// CallbackDispatcher is the core-to-host callback entry point used by the
// synchronous invocation path. It receives the callback id and the JSON
// array of arguments and returns an encoded envelope (success, pending or
// error).
//
// Implementations must not block beyond the host function itself and must
// never panic; a panic is recovered by the core and reported as a boundary
// error.
type CallbackDispatcher interface {
	Dispatch(callbackID uint64, args []byte) []byte
}

// DispatchFunc adapts a function to CallbackDispatcher.
type DispatchFunc func(callbackID uint64, args []byte) []byte

// Dispatch calls f.
func (f DispatchFunc) Dispatch(callbackID uint64, args []byte) []byte {
	return f(callbackID, args)
}
