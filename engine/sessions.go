package engine

import (
	"context"
	"sync"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

type session struct {
	err      error
	cancel   context.CancelCauseFunc
	state    entities.EvalState
	payload  []byte
	engineID uint64
}

// sessionTable tracks async evaluations. An entry moves at most once from
// InProgress to a terminal state and is deleted when the terminal state is
// read, cancelled or its engine is disposed.
type sessionTable struct {
	m  map[uint64]*session
	mu sync.Mutex
}

func newSessionTable() *sessionTable {
	return &sessionTable{m: make(map[uint64]*session)}
}

func (t *sessionTable) start(evalID, engineID uint64, cancel context.CancelCauseFunc) {
	t.mu.Lock()
	t.m[evalID] = &session{state: entities.EvalInProgress, engineID: engineID, cancel: cancel}
	t.mu.Unlock()
}

// finish records the outcome. It reports false when the session is gone
// (cancelled or disposed) or already terminal.
func (t *sessionTable) finish(evalID uint64, payload []byte, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.m[evalID]
	if !ok || s.state.Terminal() {
		return false
	}
	if err != nil {
		s.state = entities.EvalError
		s.err = err
	} else {
		s.state = entities.EvalSuccess
		s.payload = payload
	}
	s.cancel = nil
	return true
}

// poll reads the session state. A terminal read removes the entry.
func (t *sessionTable) poll(evalID uint64) (entities.EvalStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.m[evalID]
	if !ok {
		return entities.EvalStatus{}, errors.ErrEvalNotFound
	}
	st := entities.EvalStatus{EvalID: evalID, State: s.state, Payload: s.payload, Err: s.err}
	if s.state.Terminal() {
		delete(t.m, evalID)
	}
	return st, nil
}

// cancel removes the session. It returns the cancel function of a running
// session; a finished session is removed and reported as not found.
func (t *sessionTable) cancel(evalID uint64) (context.CancelCauseFunc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.m[evalID]
	if !ok {
		return nil, errors.ErrEvalNotFound
	}
	delete(t.m, evalID)
	if s.state.Terminal() {
		return nil, errors.ErrEvalNotFound
	}
	return s.cancel, nil
}

// purge removes every session of an engine and returns the cancel functions
// of those still running.
func (t *sessionTable) purge(engineID uint64) []context.CancelCauseFunc {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cancels []context.CancelCauseFunc
	for id, s := range t.m {
		if s.engineID != engineID {
			continue
		}
		delete(t.m, id)
		if s.cancel != nil {
			cancels = append(cancels, s.cancel)
		}
	}
	return cancels
}

func (t *sessionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
