// Package wireformat defines the JSON wire format exchanged across the
// boundary: the callback envelope, function-call requests, eval poll results
// and analysis results. These types define the boundary contract and must
// remain backward compatible.
package wireformat

import (
	"encoding/json"
	"fmt"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// ErrorDetail is the structured error carried by envelopes and poll results.
type ErrorDetail = entities.ErrorDetail

// Status discriminates the three envelope shapes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// Envelope is the outcome of one host callback invocation.
type Envelope struct {
	Error    *ErrorDetail    `json:"error,omitempty"`
	Status   Status          `json:"status" jsonschema:"enum=success,enum=pending,enum=error"`
	Value    json.RawMessage `json:"value,omitempty"`
	FutureID uint64          `json:"future_id,omitempty"`
}

// Success encodes v into a success envelope.
func Success(v any) (Envelope, error) {
	raw, err := EncodeValue(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Status: StatusSuccess, Value: raw}, nil
}

// Pending returns an envelope announcing a deferred result under futureID.
func Pending(futureID uint64) Envelope {
	return Envelope{Status: StatusPending, FutureID: futureID}
}

// Failure wraps err into an error envelope.
func Failure(err error) Envelope {
	detail := errors.ToErrorDetail(err)
	if detail == nil {
		detail = entities.NewErrorDetail(errors.TypeInternal, "unknown error")
	}
	return Envelope{Status: StatusError, Error: detail}
}

// Result builds the envelope for a completed call: Failure when err is set,
// Success otherwise. Encoding failures become error envelopes.
func Result(v any, err error) Envelope {
	if err != nil {
		return Failure(err)
	}
	env, encErr := Success(v)
	if encErr != nil {
		return Failure(encErr)
	}
	return env
}

// Marshal encodes the envelope. Envelope fields always encode, so the
// error branch only guards against a corrupt ErrorDetail.Details value.
func (e Envelope) Marshal() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		data, _ = json.Marshal(Failure(&errors.WireFormatError{Operation: "marshal", Type: "envelope", Err: err}))
	}
	return data
}

// Decode returns the value carried by a success envelope, or the error
// carried by an error envelope. Pending envelopes return ErrPending.
func (e Envelope) Decode() (any, error) {
	switch e.Status {
	case StatusSuccess:
		return DecodeValue(e.Value)
	case StatusError:
		return nil, errors.FromErrorDetail(e.Error)
	case StatusPending:
		return nil, ErrPending
	}
	return nil, fmt.Errorf("unknown envelope status %q", e.Status)
}

// ErrPending is returned by Envelope.Decode for a pending envelope.
var ErrPending = fmt.Errorf("envelope is pending")

// ParseEnvelope decodes and checks an envelope payload.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &errors.WireFormatError{Operation: "unmarshal", Type: "envelope", Err: err}
	}
	switch env.Status {
	case StatusSuccess:
	case StatusPending:
		if env.FutureID == 0 {
			return Envelope{}, &errors.WireFormatError{Operation: "unmarshal", Type: "envelope", Err: fmt.Errorf("pending envelope without future_id")}
		}
	case StatusError:
		if env.Error == nil {
			env.Error = entities.NewErrorDetail(errors.TypeInternal, "host reported an error without detail")
		}
	default:
		return Envelope{}, &errors.WireFormatError{Operation: "unmarshal", Type: "envelope", Err: fmt.Errorf("unknown status %q", env.Status)}
	}
	return env, nil
}

// FunctionCallRequestWire is the JSON form of a pending function-call request.
type FunctionCallRequestWire struct {
	Function string          `json:"function_name"`
	Args     json.RawMessage `json:"args"`
	ExecID   uint64          `json:"exec_id"`
	EngineID uint64          `json:"engine_id"`
	EvalID   uint64          `json:"eval_id"`
}

// RequestToWire converts a request entity to its wire form.
func RequestToWire(req entities.FunctionCallRequest) FunctionCallRequestWire {
	args := json.RawMessage(req.Args)
	if len(args) == 0 {
		args = json.RawMessage("[]")
	}
	return FunctionCallRequestWire{
		Function: req.Function,
		Args:     args,
		ExecID:   req.ExecID,
		EngineID: req.EngineID,
		EvalID:   req.EvalID,
	}
}

// EvalPollWire is the JSON form of an eval poll result.
type EvalPollWire struct {
	Error  *ErrorDetail       `json:"error,omitempty"`
	Status entities.EvalState `json:"status"`
	Value  json.RawMessage    `json:"value,omitempty"`
	EvalID uint64             `json:"eval_id"`
}

// PollToWire converts a poll observation to its wire form.
func PollToWire(st entities.EvalStatus) EvalPollWire {
	return EvalPollWire{
		Error:  errors.ToErrorDetail(st.Err),
		Status: st.State,
		Value:  json.RawMessage(st.Payload),
		EvalID: st.EvalID,
	}
}

// AnalysisWire is the JSON form of a script analysis.
type AnalysisWire = entities.Analysis
