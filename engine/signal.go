package engine

import "sync"

// signal is a broadcast wake-up. Each broadcast closes the current channel
// and installs a fresh one, so a waiter that fetched the channel before an
// event never misses it.
type signal struct {
	ch chan struct{}
	mu sync.Mutex
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *signal) broadcast() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}
