// Package abi provides the buffer table behind the boundary.
//
// Every payload that crosses the boundary is copied into a tracked buffer and
// handed to the receiver as a packed handle. The receiver releases it exactly
// once through Free. Handles never alias: a slot number is not reused while
// the table lives.
package abi

import (
	"fmt"
	"sync"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// MaxTotalAllocations is the maximum total memory the table will hold.
// This bounds memory pinned by receivers that never free their buffers.
const MaxTotalAllocations = 100 * 1024 * 1024 // 100 MB

// PtrHighBits is the shift of the slot number inside a packed handle.
const PtrHighBits = 32

// Handle is a packed (slot, length) reference to a tracked buffer. 0 is null.
type Handle uint64

// Table tracks buffers handed across the boundary.
type Table struct {
	bufs           map[uint32][]byte
	limit          int
	totalAllocated int
	nextSlot       uint32
	mu             sync.Mutex
}

// NewTable creates a table that refuses to hold more than limit bytes.
// A limit of 0 means MaxTotalAllocations.
func NewTable(limit int) *Table {
	if limit <= 0 {
		limit = MaxTotalAllocations
	}
	return &Table{bufs: make(map[uint32][]byte), limit: limit}
}

// Allocate copies data into a new tracked buffer and returns its handle.
// Empty data yields the null handle.
func (t *Table) Allocate(data []byte) (Handle, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if uint64(len(data)) > uint64(^uint32(0)) {
		return 0, &errors.MemoryError{Requested: len(data), Limit: t.limit}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.totalAllocated+len(data) > t.limit {
		return 0, &errors.MemoryError{Requested: len(data), Current: t.totalAllocated, Limit: t.limit}
	}

	t.nextSlot++
	if t.nextSlot == 0 {
		return 0, fmt.Errorf("abi: slot space exhausted")
	}
	slot := t.nextSlot

	buf := make([]byte, len(data))
	copy(buf, data)
	t.bufs[slot] = buf
	t.totalAllocated += len(buf)

	return PackPtrLen(slot, uint32(len(buf))), nil
}

// Read returns a copy of the buffer behind h. The buffer stays tracked.
func (t *Table) Read(h Handle) ([]byte, bool) {
	if h == 0 {
		return nil, true
	}
	slot, length := UnpackPtrLen(h)

	t.mu.Lock()
	defer t.mu.Unlock()

	buf, ok := t.bufs[slot]
	if !ok || uint32(len(buf)) != length {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, true
}

// Take reads and frees the buffer behind h in one step.
func (t *Table) Take(h Handle) ([]byte, bool) {
	if h == 0 {
		return nil, true
	}
	slot, length := UnpackPtrLen(h)

	t.mu.Lock()
	defer t.mu.Unlock()

	buf, ok := t.bufs[slot]
	if !ok || uint32(len(buf)) != length {
		return nil, false
	}
	delete(t.bufs, slot)
	t.totalAllocated -= len(buf)
	return buf, true
}

// Free releases the buffer behind h. It reports false for an unknown or
// already freed handle; a double free never corrupts the accounting.
func (t *Table) Free(h Handle) bool {
	if h == 0 {
		return true
	}
	_, ok := t.Take(h)
	return ok
}

// FreeAll releases every tracked buffer.
func (t *Table) FreeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for slot := range t.bufs {
		delete(t.bufs, slot)
	}
	t.totalAllocated = 0
}

// Stats returns the number of live buffers and their total size.
func (t *Table) Stats() (count, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bufs), t.totalAllocated
}

// PackPtrLen packs a slot and length into a single handle.
// Slot is stored in the high 32 bits, length in the low 32 bits.
// Panics if slot is 0 and length > 0, indicating an invalid state.
func PackPtrLen(slot, length uint32) Handle {
	if slot == 0 && length > 0 {
		panic(fmt.Sprintf("abi: invalid pack - null slot with non-zero length (%d)", length))
	}
	return Handle(uint64(slot)<<PtrHighBits | uint64(length))
}

// UnpackPtrLen unpacks a handle into its slot and length.
// Panics if slot is 0 and length > 0, indicating an invalid handle.
func UnpackPtrLen(h Handle) (slot, length uint32) {
	slot = uint32(uint64(h) >> PtrHighBits)
	length = uint32(h)
	if slot == 0 && length > 0 {
		panic(fmt.Sprintf("abi: invalid unpack - null slot with non-zero length (%d)", length))
	}
	return slot, length
}
