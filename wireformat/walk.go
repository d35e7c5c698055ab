package wireformat

import (
	"fmt"
	"reflect"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// MaxDepth is the deepest nesting a value may have on the wire. It matches
// the nesting limit of the JSON decoder.
const MaxDepth = 10000

var (
	// ErrCyclicValue is returned for a map or list that contains itself.
	ErrCyclicValue = fmt.Errorf("cyclic value")

	// ErrTooDeep is returned for a value nested deeper than MaxDepth.
	ErrTooDeep = fmt.Errorf("value nested deeper than %d", MaxDepth)
)

type refKey struct {
	ptr uintptr
	len int
}

// tracker records the containers on the current path from the root.
// Siblings may share a container; only a container that is its own
// ancestor is a cycle.
type tracker struct {
	path  map[refKey]struct{}
	depth int
}

func (t *tracker) enter(rv reflect.Value) (refKey, error) {
	if t.depth >= MaxDepth {
		return refKey{}, ErrTooDeep
	}
	t.depth++

	var k refKey
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer:
		k.ptr = rv.Pointer()
	case reflect.Slice:
		if rv.Len() > 0 {
			k = refKey{ptr: rv.Pointer(), len: rv.Len()}
		}
	}
	if k.ptr == 0 {
		return k, nil
	}
	if _, ok := t.path[k]; ok {
		t.depth--
		return refKey{}, ErrCyclicValue
	}
	if t.path == nil {
		t.path = make(map[refKey]struct{})
	}
	t.path[k] = struct{}{}
	return k, nil
}

func (t *tracker) leave(k refKey) {
	t.depth--
	if k.ptr != 0 {
		delete(t.path, k)
	}
}

// VisitStrings calls fn for every string in a script value, map keys
// included, and stops at the first false. It fails with ErrCyclicValue or
// ErrTooDeep instead of recursing without bound.
func VisitStrings(v any, fn func(string) bool) error {
	var t tracker
	if _, err := t.visit(v, fn); err != nil {
		return &errors.WireFormatError{Operation: "inspect", Type: "value", Err: err}
	}
	return nil
}

func (t *tracker) visit(v any, fn func(string) bool) (bool, error) {
	switch x := v.(type) {
	case string:
		return fn(x), nil
	case []any:
		k, err := t.enter(reflect.ValueOf(x))
		if err != nil {
			return false, err
		}
		defer t.leave(k)
		for _, e := range x {
			if ok, err := t.visit(e, fn); !ok || err != nil {
				return ok, err
			}
		}
	case map[string]any:
		k, err := t.enter(reflect.ValueOf(x))
		if err != nil {
			return false, err
		}
		defer t.leave(k)
		for key, e := range x {
			if !fn(key) {
				return false, nil
			}
			if ok, err := t.visit(e, fn); !ok || err != nil {
				return ok, err
			}
		}
	}
	return true, nil
}
