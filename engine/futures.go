package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// futureToken is the one-shot completion slot of a deferred result returned
// on the synchronous path. ch receives the payload, or is closed with err
// set when the token expires or its engine is disposed.
type futureToken struct {
	err      error
	ch       chan []byte
	timer    *time.Timer
	engineID uint64
}

type futureTable struct {
	m  map[uint64]*futureToken
	mu sync.Mutex
}

func newFutureTable() *futureTable {
	return &futureTable{m: make(map[uint64]*futureToken)}
}

// register creates the token for futureID. It expires after timeout.
func (t *futureTable) register(futureID, engineID uint64, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.m[futureID]; exists {
		return fmt.Errorf("future %d already registered", futureID)
	}
	tok := &futureToken{engineID: engineID, ch: make(chan []byte, 1)}
	tok.timer = time.AfterFunc(timeout, func() {
		t.fail(futureID, &errors.TimeoutError{Operation: "future completion", Duration: timeout})
	})
	t.m[futureID] = tok
	return nil
}

// take removes and returns the token for futureID.
func (t *futureTable) take(futureID uint64) (*futureToken, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tok, ok := t.m[futureID]
	if !ok {
		return nil, false
	}
	delete(t.m, futureID)
	tok.timer.Stop()
	return tok, true
}

func (tok *futureToken) deliver(payload []byte) {
	tok.ch <- payload
}

func (tok *futureToken) abort(err error) {
	tok.err = err
	close(tok.ch)
}

func (t *futureTable) fail(futureID uint64, err error) bool {
	tok, ok := t.take(futureID)
	if !ok {
		return false
	}
	tok.abort(err)
	return true
}

// await waits for the payload of futureID. The token must still be
// registered when await starts.
func (t *futureTable) await(ctx context.Context, futureID uint64) ([]byte, error) {
	t.mu.Lock()
	tok, ok := t.m[futureID]
	t.mu.Unlock()
	if !ok {
		return nil, errors.ErrFutureNotFound
	}

	select {
	case payload, ok := <-tok.ch:
		if !ok {
			return nil, tok.err
		}
		return payload, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// purge drops every token of an engine.
func (t *futureTable) purge(engineID uint64) int {
	t.mu.Lock()
	var dropped []*futureToken
	for id, tok := range t.m {
		if tok.engineID == engineID {
			delete(t.m, id)
			tok.timer.Stop()
			dropped = append(dropped, tok)
		}
	}
	t.mu.Unlock()

	for _, tok := range dropped {
		tok.abort(errors.ErrDisposed)
	}
	return len(dropped)
}

func (t *futureTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
