package engine

import (
	"sync"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
)

type callResult struct {
	err     error
	payload []byte
}

// pendingCall is one outstanding function-call request. resp has room for
// exactly one result, so delivering never blocks.
type pendingCall struct {
	resp chan callResult
	req  entities.FunctionCallRequest
}

// requestChannel is the function-call request queue plus the table of
// waiting response slots. A request sits in queue until the host fetches
// it, and in waiting until it is answered, times out or is dropped.
type requestChannel struct {
	waiting map[uint64]*pendingCall
	queue   []*pendingCall
	mu      sync.Mutex
}

func newRequestChannel() *requestChannel {
	return &requestChannel{waiting: make(map[uint64]*pendingCall)}
}

// post enqueues a fully built request.
func (c *requestChannel) post(req entities.FunctionCallRequest) *pendingCall {
	pc := &pendingCall{req: req, resp: make(chan callResult, 1)}
	c.mu.Lock()
	c.waiting[req.ExecID] = pc
	c.queue = append(c.queue, pc)
	c.mu.Unlock()
	return pc
}

// next pops the oldest queued request accepted by match. The request stays
// in the waiting table until answered.
func (c *requestChannel) next(match func(*pendingCall) bool) (entities.FunctionCallRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, pc := range c.queue {
		if match != nil && !match(pc) {
			continue
		}
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		return pc.req, true
	}
	return entities.FunctionCallRequest{}, false
}

// take removes the request with execID from both tables.
func (c *requestChannel) take(execID uint64) (*pendingCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pc, ok := c.waiting[execID]
	if !ok {
		return nil, false
	}
	delete(c.waiting, execID)
	c.unqueue(pc)
	return pc, true
}

// drop removes every request accepted by match and fails its waiter with err.
func (c *requestChannel) drop(match func(*pendingCall) bool, err error) int {
	c.mu.Lock()
	var dropped []*pendingCall
	for id, pc := range c.waiting {
		if match(pc) {
			delete(c.waiting, id)
			c.unqueue(pc)
			dropped = append(dropped, pc)
		}
	}
	c.mu.Unlock()

	for _, pc := range dropped {
		pc.resp <- callResult{err: err}
	}
	return len(dropped)
}

// unqueue must be called with mu held.
func (c *requestChannel) unqueue(target *pendingCall) {
	for i, pc := range c.queue {
		if pc == target {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

func (c *requestChannel) counts() (pending, waiting int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue), len(c.waiting)
}
