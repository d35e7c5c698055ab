package host

import (
	"time"

	"go.uber.org/zap"

	"github.com/cotw-fabier/rhai-dart-sub001/config"
	"github.com/cotw-fabier/rhai-dart-sub001/engine"
	"github.com/cotw-fabier/rhai-dart-sub001/hostfuncs"
)

// DefaultPollInterval is the fallback re-poll delay of the async pump while
// evaluations are outstanding.
const DefaultPollInterval = 100 * time.Millisecond

// Option defines a functional option for configuring a Runtime.
type Option func(*options)

type options struct {
	log          *zap.Logger
	bridge       *engine.Bridge
	cfg          *config.Engine
	bundles      []hostfuncs.Bundle
	middleware   []hostfuncs.Middleware
	pollInterval time.Duration
}

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithConfig sets the engine configuration. The default is config.Defaults().
func WithConfig(cfg config.Engine) Option {
	return func(o *options) {
		o.cfg = &cfg
	}
}

// WithBridge attaches the runtime to an existing bridge. By default each
// runtime owns a private bridge.
func WithBridge(b *engine.Bridge) Option {
	return func(o *options) {
		o.bridge = b
	}
}

// WithPollInterval sets the fallback re-poll delay of the async pump.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithBundle registers every function of b when the runtime is created.
func WithBundle(b hostfuncs.Bundle) Option {
	return func(o *options) {
		o.bundles = append(o.bundles, b)
	}
}

// WithMiddleware wraps every host function registered on the runtime. Panic
// recovery and logging are always installed outermost.
func WithMiddleware(mw ...hostfuncs.Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, mw...)
	}
}
