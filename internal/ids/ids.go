// Package ids hands out process-wide identifiers.
// Identifiers start at 1 and are never reused; 0 always means "none".
package ids

import "sync/atomic"

// Sequence is a monotonically increasing id source.
type Sequence struct {
	n atomic.Uint64
}

// Next returns the next id.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Process-wide sequences, one per entity kind.
var (
	Engine   Sequence
	Callback Sequence
	Eval     Sequence
	Exec     Sequence
	Future   Sequence
)
