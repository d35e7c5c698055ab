package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cotw-fabier/rhai-dart-sub001/config"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/ports"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/ids"
	"github.com/cotw-fabier/rhai-dart-sub001/log"
	"github.com/cotw-fabier/rhai-dart-sub001/wireformat"
)

// Bridge owns the tables shared by all engines created from it. Each table
// has its own lock and no lock is held while host code runs or while a
// worker blocks.
type Bridge struct {
	log      *zap.Logger
	changed  *signal
	requests *requestChannel
	sessions *sessionTable
	futures  *futureTable
	engines  map[uint64]*Engine

	schemas    *wireformat.SchemaRegistry
	schemasErr error
	schemaOnce sync.Once

	mu sync.RWMutex
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the bridge logger. Engines inherit it.
func WithLogger(l *zap.Logger) BridgeOption {
	return func(b *Bridge) {
		b.log = l
	}
}

// NewBridge creates an empty bridge.
func NewBridge(opts ...BridgeOption) *Bridge {
	b := &Bridge{
		changed:  newSignal(),
		requests: newRequestChannel(),
		sessions: newSessionTable(),
		futures:  newFutureTable(),
		engines:  make(map[uint64]*Engine),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = log.Or(b.log).Named("bridge")
	return b
}

var (
	defaultBridge *Bridge
	defaultOnce   sync.Once
)

// Default returns the process-wide bridge used by the boundary layer. It is
// created on first use with the process logger and lives for the process.
func Default() *Bridge {
	defaultOnce.Do(func() {
		defaultBridge = NewBridge()
	})
	return defaultBridge
}

// NewEngine validates cfg and creates an engine whose synchronous callbacks
// go through d.
func (b *Bridge) NewEngine(cfg config.Engine, d ports.CallbackDispatcher) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("callback dispatcher is required")
	}

	e := newEngine(b, ids.Engine.Next(), cfg, d)

	b.mu.Lock()
	b.engines[e.id] = e
	b.mu.Unlock()

	e.log.Debug("engine created")
	return e, nil
}

// Engine returns the live engine with the given id.
func (b *Bridge) Engine(id uint64) (*Engine, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.engines[id]
	if !ok {
		return nil, errors.ErrEngineNotFound
	}
	return e, nil
}

func (b *Bridge) forget(engineID uint64) {
	b.mu.Lock()
	delete(b.engines, engineID)
	b.mu.Unlock()
}

// Changed returns a channel closed on the next state change a host poll
// loop may care about: a request posted, a session finished, a session
// cancelled or an engine disposed.
func (b *Bridge) Changed() <-chan struct{} {
	return b.changed.wait()
}

// PendingRequest pops the oldest unfetched function-call request of any
// engine. It never blocks.
func (b *Bridge) PendingRequest() (entities.FunctionCallRequest, bool) {
	return b.requests.next(nil)
}

// PendingRequestFor pops the oldest unfetched request issued by engineID.
func (b *Bridge) PendingRequestFor(engineID uint64) (entities.FunctionCallRequest, bool) {
	return b.requests.next(func(pc *pendingCall) bool {
		return pc.req.EngineID == engineID
	})
}

// ProvideResult answers the request execID with an encoded envelope. It
// returns ErrRequestNotFound when the request already timed out, was
// answered, or never existed. It never blocks.
func (b *Bridge) ProvideResult(execID uint64, payload []byte) error {
	pc, ok := b.requests.take(execID)
	if !ok {
		return errors.ErrRequestNotFound
	}
	if err := b.checkPayload(pc.req.EngineID, payload); err != nil {
		pc.resp <- callResult{err: &errors.BoundaryError{Op: "provide_result", Err: err}}
		return err
	}
	pc.resp <- callResult{payload: payload}
	return nil
}

// CompleteFuture delivers the encoded envelope of a deferred result. A
// missing id (expired, disposed or already completed) returns
// ErrFutureNotFound and changes nothing.
func (b *Bridge) CompleteFuture(futureID uint64, payload []byte) error {
	tok, ok := b.futures.take(futureID)
	if !ok {
		return errors.ErrFutureNotFound
	}
	if err := b.checkPayload(tok.engineID, payload); err != nil {
		tok.abort(&errors.BoundaryError{Op: "complete_future", Err: err})
		return err
	}
	tok.deliver(payload)
	b.log.Debug("deferred result delivered", zap.Uint64("future_id", futureID))
	return nil
}

// Poll reads an async evaluation. A terminal state is returned once; later
// polls return ErrEvalNotFound.
func (b *Bridge) Poll(evalID uint64) (entities.EvalStatus, error) {
	return b.sessions.poll(evalID)
}

// Cancel stops an async evaluation. Its pending requests are failed with
// ErrCancelled and the worker unwinds at its next interrupt check. A
// finished or unknown session returns ErrEvalNotFound.
func (b *Bridge) Cancel(evalID uint64) error {
	cancel, err := b.sessions.cancel(evalID)
	if err != nil {
		return err
	}
	cancel(errors.ErrCancelled)
	n := b.requests.drop(func(pc *pendingCall) bool {
		return pc.req.EvalID == evalID
	}, errors.ErrCancelled)
	b.changed.broadcast()

	b.log.Debug("eval cancelled", zap.Uint64("eval_id", evalID), zap.Int("requests_dropped", n))
	return nil
}

// Stats reports live table sizes.
func (b *Bridge) Stats() entities.BridgeStats {
	b.mu.RLock()
	engines := len(b.engines)
	b.mu.RUnlock()

	pending, waiting := b.requests.counts()
	return entities.BridgeStats{
		Engines:          engines,
		PendingRequests:  pending,
		WaitingResponses: waiting,
		Sessions:         b.sessions.len(),
		Futures:          b.futures.len(),
	}
}

// Schemas returns the wire schema registry, built on first use.
func (b *Bridge) Schemas() (*wireformat.SchemaRegistry, error) {
	b.schemaOnce.Do(func() {
		b.schemas, b.schemasErr = wireformat.NewSchemaRegistry()
	})
	return b.schemas, b.schemasErr
}

// checkPayload validates an envelope against its schema when the owning
// engine asks for strict payloads.
func (b *Bridge) checkPayload(engineID uint64, payload []byte) error {
	e, err := b.Engine(engineID)
	if err != nil || !e.cfg.StrictPayloads {
		return nil
	}
	reg, err := b.Schemas()
	if err != nil {
		return err
	}
	return reg.Validate(wireformat.KindEnvelope, payload)
}
