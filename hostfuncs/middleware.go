package hostfuncs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps a Func to add cross-cutting behavior. It receives the
// registered name. Middleware executes in FIFO order (first registered
// wraps first, onion model).
type Middleware func(name string, next Func) Func

// PanicRecoveryMiddleware returns a middleware that catches panics in host
// functions and converts them into boundary errors instead of unwinding
// into the interpreter.
func PanicRecoveryMiddleware() Middleware {
	return func(name string, next Func) Func {
		return func(ctx context.Context, args []any) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					result = nil
					err = NewPanicError(name, r)
				}
			}()
			return next(ctx, args)
		}
	}
}

// LoggingMiddleware returns a middleware that logs host function invocations
// at debug level and failures at warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(name string, next Func) Func {
		return func(ctx context.Context, args []any) (any, error) {
			fields := []zap.Field{zap.String("function", name), zap.Int("args", len(args))}
			if hc, ok := ctx.(HostContext); ok {
				fields = append(fields, zap.Stringer("mode", hc.Mode()))
				if id := hc.ExecID(); id != 0 {
					fields = append(fields, zap.Uint64("exec_id", id))
				}
			}
			start := time.Now()
			result, err := next(ctx, args)
			fields = append(fields, zap.Duration("elapsed", time.Since(start)))
			if err != nil {
				logger.Warn("host function failed", append(fields, zap.Error(err))...)
				return result, err
			}
			if _, deferred := result.(Deferred); deferred {
				fields = append(fields, zap.Bool("deferred", true))
			}
			logger.Debug("host function completed", fields...)
			return result, nil
		}
	}
}
