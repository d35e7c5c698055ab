package entities

// FunctionCallRequest is a host function call posted by a worker running in
// request mode. It is consumed exactly once by the host poll loop.
type FunctionCallRequest struct {
	// Function is the registered name the script called.
	Function string `json:"function_name"`

	// Args is the JSON array of encoded arguments.
	Args []byte `json:"args"`

	// ExecID identifies the waiting response slot.
	ExecID uint64 `json:"exec_id"`

	// EngineID identifies the engine whose evaluation issued the call.
	EngineID uint64 `json:"engine_id"`

	// EvalID identifies the async evaluation session.
	EvalID uint64 `json:"eval_id"`
}
