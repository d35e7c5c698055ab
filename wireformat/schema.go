package wireformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// Schema kinds registered by NewSchemaRegistry.
const (
	KindEnvelope            = "envelope"
	KindFunctionCallRequest = "function_call_request"
	KindEvalPoll            = "eval_poll"
	KindAnalysis            = "analysis"
)

var rawMessageType = reflect.TypeOf(json.RawMessage{})

// GenerateSchema creates a JSON schema (Draft 2020-12) from a Go value.
// Raw JSON fields accept any value.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		Anonymous:      true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == rawMessageType {
				return &jsonschema.Schema{}
			}
			return nil
		},
	}
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, &errors.SchemaError{Type: fmt.Sprintf("%T", v), Err: err}
	}
	return data, nil
}

// SchemaRegistry holds the JSON schemas of boundary payloads and validates
// payloads against them.
type SchemaRegistry struct {
	schemas  map[string][]byte
	compiled map[string]*sjsonschema.Schema
	mu       sync.RWMutex
}

// NewSchemaRegistry returns a registry holding the built-in wire kinds.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	r := &SchemaRegistry{
		schemas:  make(map[string][]byte),
		compiled: make(map[string]*sjsonschema.Schema),
	}
	builtins := map[string]any{
		KindEnvelope:            &Envelope{},
		KindFunctionCallRequest: &FunctionCallRequestWire{},
		KindEvalPoll:            &EvalPollWire{},
		KindAnalysis:            &AnalysisWire{},
	}
	for kind, model := range builtins {
		if err := r.Register(kind, model); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema generated from model. Kinds cannot be replaced.
func (r *SchemaRegistry) Register(kind string, model any) error {
	data, err := GenerateSchema(model)
	if err != nil {
		return err
	}

	compiler := sjsonschema.NewCompiler()
	if err := compiler.AddResource(kind, bytes.NewReader(data)); err != nil {
		return &errors.SchemaError{Type: kind, Err: err}
	}
	sch, err := compiler.Compile(kind)
	if err != nil {
		return &errors.SchemaError{Type: kind, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[kind]; exists {
		return fmt.Errorf("schema %q already registered", kind)
	}
	r.schemas[kind] = data
	r.compiled[kind] = sch
	return nil
}

// Schema returns the JSON schema registered for kind.
func (r *SchemaRegistry) Schema(kind string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.schemas[kind]
	return data, ok
}

// Kinds lists the registered kinds in sorted order.
func (r *SchemaRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate checks a JSON payload against the schema registered for kind.
func (r *SchemaRegistry) Validate(kind string, payload []byte) error {
	r.mu.RLock()
	sch, ok := r.compiled[kind]
	r.mu.RUnlock()
	if !ok {
		return &errors.SchemaError{Type: kind, Err: fmt.Errorf("no schema registered")}
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return &errors.SchemaError{Type: kind, Err: err}
	}
	if err := sch.Validate(doc); err != nil {
		return &errors.SchemaError{Type: kind, Err: err}
	}
	return nil
}
