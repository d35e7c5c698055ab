package entities

// EvalState is the state of an async evaluation session.
type EvalState string

const (
	// EvalInProgress indicates the worker is still running the script.
	EvalInProgress EvalState = "in_progress"

	// EvalSuccess indicates the script finished with a value.
	EvalSuccess EvalState = "success"

	// EvalError indicates the script failed.
	EvalError EvalState = "error"
)

// Terminal reports whether the state can no longer change.
func (s EvalState) Terminal() bool {
	return s == EvalSuccess || s == EvalError
}

// EvalStatus is one observation of an async evaluation session.
type EvalStatus struct {
	// Err is set when State is EvalError.
	Err error

	// State is the session state at the time of the poll.
	State EvalState

	// Payload is the encoded result value when State is EvalSuccess.
	Payload []byte

	// EvalID identifies the session.
	EvalID uint64
}

// Analysis is the outcome of checking a script without running it.
type Analysis struct {
	SyntaxErrors []string `json:"syntax_errors"`
	Warnings     []string `json:"warnings"`
	Valid        bool     `json:"valid"`
}

// BridgeStats reports the number of live entries in each bridge table.
type BridgeStats struct {
	Engines          int `json:"engines"`
	PendingRequests  int `json:"pending_requests"`
	WaitingResponses int `json:"waiting_responses"`
	Sessions         int `json:"sessions"`
	Futures          int `json:"futures"`
}
