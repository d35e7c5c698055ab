package engine

import (
	"sync"
	"time"
)

// execBudget bounds the time an evaluation spends running script code.
// The clock stops while the evaluation waits on the host.
type execBudget struct {
	started   time.Time
	timer     *time.Timer
	expire    func()
	remaining time.Duration
	mu        sync.Mutex
}

func newExecBudget(d time.Duration, expire func()) *execBudget {
	b := &execBudget{remaining: d, expire: expire}
	b.resume()
	return b
}

// pause stops the clock. A nil budget is unbounded.
func (b *execBudget) pause() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return
	}
	if b.timer.Stop() {
		b.remaining -= time.Since(b.started)
	}
	b.timer = nil
}

// resume restarts the clock with whatever time is left.
func (b *execBudget) resume() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		return
	}
	b.started = time.Now()
	b.timer = time.AfterFunc(max(b.remaining, 0), b.expire)
}

func (b *execBudget) stop() {
	b.pause()
}
