package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cotw-fabier/rhai-dart-sub001/config"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/ports"
)

// Engine is one configured interpreter scope: registered functions,
// constants and limits. It is safe for concurrent use; every evaluation
// builds its own runtime from a snapshot of the scope.
type Engine struct {
	ctx        context.Context
	cancel     context.CancelCauseFunc
	bridge     *Bridge
	dispatcher ports.CallbackDispatcher
	log        *zap.Logger
	workers    *semaphore.Weighted
	functions  map[string]uint64
	constants  map[string]any
	cfg        config.Engine
	id         uint64
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     atomic.Bool
}

func newEngine(b *Bridge, id uint64, cfg config.Engine, d ports.CallbackDispatcher) *Engine {
	ctx, cancel := context.WithCancelCause(context.Background())
	e := &Engine{
		ctx:        ctx,
		cancel:     cancel,
		bridge:     b,
		dispatcher: d,
		log:        b.log.Named("engine").With(zap.Uint64("engine", id)),
		functions:  make(map[string]uint64),
		constants:  make(map[string]any),
		cfg:        cfg,
		id:         id,
	}
	if cfg.MaxConcurrentEvals > 0 {
		e.workers = semaphore.NewWeighted(cfg.MaxConcurrentEvals)
	}
	return e
}

// ID returns the engine id.
func (e *Engine) ID() uint64 {
	return e.id
}

// Config returns the engine configuration.
func (e *Engine) Config() config.Engine {
	return e.cfg
}

// Closed reports whether the engine was disposed.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// RegisterFunction binds a script-visible name to a host callback id.
// Rebinding a name replaces the previous callback id.
func (e *Engine) RegisterFunction(name string, callbackID uint64) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return errors.ErrDisposed
	}
	e.functions[name] = callbackID
	return nil
}

// UnregisterFunction removes a name binding. Unknown names are ignored.
func (e *Engine) UnregisterFunction(name string) {
	e.mu.Lock()
	delete(e.functions, name)
	e.mu.Unlock()
}

// Functions returns a copy of the name to callback id bindings.
func (e *Engine) Functions() map[string]uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]uint64, len(e.functions))
	for k, v := range e.functions {
		out[k] = v
	}
	return out
}

// SetConstant exposes a read-only global to later evaluations.
func (e *Engine) SetConstant(name string, value any) error {
	if name == "" {
		return fmt.Errorf("constant name cannot be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return errors.ErrDisposed
	}
	e.constants[name] = value
	return nil
}

func (e *Engine) snapshot() (map[string]uint64, map[string]any) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	funcs := make(map[string]uint64, len(e.functions))
	for k, v := range e.functions {
		funcs[k] = v
	}
	consts := make(map[string]any, len(e.constants))
	for k, v := range e.constants {
		consts[k] = v
	}
	return funcs, consts
}

// trackFuture registers the token of a deferred result. Close flips closed
// under the write lock before purging, so a token is either refused here
// or purged there.
func (e *Engine) trackFuture(futureID uint64) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return errors.ErrDisposed
	}
	return e.bridge.futures.register(futureID, e.id, e.cfg.EffectiveAsyncTimeout())
}

// Close disposes the engine. It drops its name bindings, fails its pending
// requests with ErrDisposed, cancels its running evaluations, removes its
// sessions and drops its deferred-result tokens. Close is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed.Store(true)
		clear(e.functions)
		clear(e.constants)
		e.mu.Unlock()

		e.cancel(errors.ErrDisposed)

		b := e.bridge
		requests := b.requests.drop(func(pc *pendingCall) bool {
			return pc.req.EngineID == e.id
		}, errors.ErrDisposed)
		cancels := b.sessions.purge(e.id)
		for _, cancel := range cancels {
			cancel(errors.ErrDisposed)
		}
		futures := b.futures.purge(e.id)
		b.forget(e.id)
		b.changed.broadcast()

		e.log.Debug("engine disposed",
			zap.Int("requests_dropped", requests),
			zap.Int("sessions_cancelled", len(cancels)),
			zap.Int("futures_dropped", futures))
	})
	return nil
}
