package wireformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// Sentinel tokens for floats JSON cannot represent.
const (
	InfinityToken    = "__INFINITY__"
	NegInfinityToken = "__NEG_INFINITY__"
	NaNToken         = "__NAN__"
)

// EncodeValue encodes a script or host value as JSON. Non-finite floats
// become sentinel strings at any depth.
func EncodeValue(v any) (json.RawMessage, error) {
	var t tracker
	w, err := t.toWire(v)
	if err != nil {
		return nil, &errors.WireFormatError{Operation: "encode", Type: "value", Err: err}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, &errors.WireFormatError{Operation: "encode", Type: "value", Err: err}
	}
	return data, nil
}

// DecodeValue decodes a JSON value. Integers that fit int64 decode as
// int64, other numbers as float64, and sentinel strings as non-finite floats.
// An empty payload decodes as nil.
func DecodeValue(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &errors.WireFormatError{Operation: "decode", Type: "value", Err: err}
	}
	if dec.More() {
		return nil, &errors.WireFormatError{Operation: "decode", Type: "value", Err: fmt.Errorf("trailing data after value")}
	}
	return fromWire(raw), nil
}

// EncodeArgs encodes a call's arguments as a JSON array.
func EncodeArgs(args []any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	return EncodeValue(args)
}

// DecodeArgs decodes a JSON array of arguments. An empty payload is an
// empty argument list.
func DecodeArgs(data []byte) ([]any, error) {
	v, err := DecodeValue(data)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return []any{}, nil
	}
	args, ok := v.([]any)
	if !ok {
		return nil, &errors.WireFormatError{Operation: "decode", Type: "args", Err: fmt.Errorf("expected array, got %T", v)}
	}
	return args, nil
}

func encodeFloat(f float64) any {
	switch {
	case math.IsInf(f, 1):
		return InfinityToken
	case math.IsInf(f, -1):
		return NegInfinityToken
	case math.IsNaN(f):
		return NaNToken
	}
	return f
}

func (t *tracker) toWire(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float64:
		return encodeFloat(x), nil
	case float32:
		return encodeFloat(float64(x)), nil
	case json.RawMessage:
		return x, nil
	case []any:
		k, err := t.enter(reflect.ValueOf(x))
		if err != nil {
			return nil, err
		}
		defer t.leave(k)
		out := make([]any, len(x))
		for i, e := range x {
			w, err := t.toWire(e)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case map[string]any:
		ref, err := t.enter(reflect.ValueOf(x))
		if err != nil {
			return nil, err
		}
		defer t.leave(ref)
		out := make(map[string]any, len(x))
		for k, e := range x {
			w, err := t.toWire(e)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	case error:
		return x.Error(), nil
	}
	return t.reflectToWire(reflect.ValueOf(v))
}

// reflectToWire handles typed slices, maps and structs. Structs go through
// their JSON encoding so json tags are honoured.
func (t *tracker) reflectToWire(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Kind() == reflect.Interface {
			return t.toWire(rv.Elem().Interface())
		}
		k, err := t.enter(rv)
		if err != nil {
			return nil, err
		}
		defer t.leave(k)
		return t.toWire(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), nil
		}
		k, err := t.enter(rv)
		if err != nil {
			return nil, err
		}
		defer t.leave(k)
		out := make([]any, rv.Len())
		for i := range out {
			w, err := t.toWire(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		k, err := t.enter(rv)
		if err != nil {
			return nil, err
		}
		defer t.leave(k)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			w, err := t.toWire(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = w
		}
		return out, nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(rv.Float()), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil
	case reflect.Struct:
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	}
	return nil, fmt.Errorf("unsupported value type %s", rv.Type())
}

func fromWire(v any) any {
	switch x := v.(type) {
	case json.Number:
		return decodeNumber(x)
	case string:
		switch x {
		case InfinityToken:
			return math.Inf(1)
		case NegInfinityToken:
			return math.Inf(-1)
		case NaNToken:
			return math.NaN()
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = fromWire(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = fromWire(e)
		}
		return x
	}
	return v
}

func decodeNumber(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f, err := n.Float64()
	if err != nil {
		return s
	}
	return f
}
