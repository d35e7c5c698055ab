package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
)

// Func is a host function callable from scripts. Arguments arrive decoded
// from the envelope codec: nil, bool, int64, float64, string, []any and
// map[string]any. The returned value goes back through the same codec.
//
// Returning a Deferred marks the call as asynchronous.
type Func func(ctx context.Context, args []any) (any, error)

// Deferred is a result that is not available yet. Then registers a callback
// run exactly once, on the host scheduler, when the result settles.
type Deferred interface {
	Then(fn func(value any, err error))
}

// Unary adapts a typed one-argument function into a Func. The argument is
// converted with a JSON round trip when it is not already of type A.
//
// Usage:
//
//	greet := hostfuncs.Unary(func(ctx context.Context, name string) (string, error) {
//	    return "hello " + name, nil
//	})
func Unary[A any, R any](fn func(context.Context, A) (R, error)) Func {
	return func(ctx context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, NewValidationError(fmt.Sprintf("expected 1 argument, got %d", len(args)))
		}
		a, err := convertArg[A](args[0], 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// Binary adapts a typed two-argument function into a Func.
func Binary[A any, B any, R any](fn func(context.Context, A, B) (R, error)) Func {
	return func(ctx context.Context, args []any) (any, error) {
		if len(args) != 2 {
			return nil, NewValidationError(fmt.Sprintf("expected 2 arguments, got %d", len(args)))
		}
		a, err := convertArg[A](args[0], 0)
		if err != nil {
			return nil, err
		}
		b, err := convertArg[B](args[1], 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}
}

func convertArg[T any](v any, pos int) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, NewValidationError(fmt.Sprintf("argument %d: %v", pos, err))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, NewValidationError(fmt.Sprintf("argument %d: cannot convert %T to %T", pos, v, out))
	}
	return out, nil
}
