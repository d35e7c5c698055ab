package ffi

import (
	"encoding/json"
	stdErrors "errors"
	"runtime/debug"
	"sync"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/entities"
	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
	"github.com/cotw-fabier/rhai-dart-sub001/internal/abi"
)

// Status is the outcome code of a boundary operation.
type Status int32

const (
	// StatusOK means the operation succeeded.
	StatusOK Status = iota
	// StatusError means the operation failed; LastError holds the detail.
	StatusError
	// StatusNotFound means the id is unknown, expired or already consumed.
	StatusNotFound
	// StatusDisposed means the engine handle was freed.
	StatusDisposed
	// StatusEmpty means there was nothing to return.
	StatusEmpty
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusNotFound:
		return "not_found"
	case StatusDisposed:
		return "disposed"
	case StatusEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

var buffers = abi.NewTable(abi.MaxTotalAllocations)

// lastError is process-wide: goroutines have no identity to key it by.
var lastError struct {
	detail *entities.ErrorDetail
	mu     sync.Mutex
}

// guard runs fn, converting a panic into a boundary error.
func guard(op string, fn func() Status) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			st = fail(&errors.BoundaryError{Op: op, Panic: r, Stack: string(debug.Stack())})
		}
	}()
	return fn()
}

// fail records err and maps it to a status.
func fail(err error) Status {
	lastError.mu.Lock()
	lastError.detail = errors.ToErrorDetail(err)
	lastError.mu.Unlock()

	switch {
	case stdErrors.Is(err, errors.ErrDisposed):
		return StatusDisposed
	case stdErrors.Is(err, errors.ErrEngineNotFound):
		return StatusDisposed
	case stdErrors.Is(err, errors.ErrEvalNotFound),
		stdErrors.Is(err, errors.ErrRequestNotFound),
		stdErrors.Is(err, errors.ErrFutureNotFound):
		return StatusNotFound
	}
	return StatusError
}

// LastError returns the detail of the most recent failure as a JSON
// buffer, or the null handle when no failure was recorded. Reading clears it.
func LastError() abi.Handle {
	lastError.mu.Lock()
	d := lastError.detail
	lastError.detail = nil
	lastError.mu.Unlock()

	if d == nil {
		return 0
	}
	h, _ := allocJSON(d)
	return h
}

func allocJSON(v any) (abi.Handle, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, &errors.WireFormatError{Operation: "marshal", Type: "boundary", Err: err}
	}
	return buffers.Allocate(data)
}

// AllocBuffer copies data into a tracked buffer owned by the caller.
func AllocBuffer(data []byte) (h abi.Handle, st Status) {
	st = guard("alloc_buffer", func() Status {
		var err error
		if h, err = buffers.Allocate(data); err != nil {
			return fail(err)
		}
		return StatusOK
	})
	return h, st
}

// ReadBuffer returns a copy of a buffer's contents without releasing it.
func ReadBuffer(h abi.Handle) (data []byte, st Status) {
	st = guard("read_buffer", func() Status {
		if h == 0 {
			return StatusOK
		}
		var ok bool
		if data, ok = buffers.Read(h); !ok {
			return fail(&errors.BoundaryError{Op: "read_buffer", Err: stdErrors.New("unknown buffer")})
		}
		return StatusOK
	})
	return data, st
}

// FreeBuffer releases a buffer. Freeing the null handle is a no-op; freeing
// twice is an error.
func FreeBuffer(h abi.Handle) Status {
	return guard("free_buffer", func() Status {
		if h == 0 {
			return StatusOK
		}
		if !buffers.Free(h) {
			return fail(&errors.BoundaryError{Op: "free_buffer", Err: stdErrors.New("buffer already freed or unknown")})
		}
		return StatusOK
	})
}

// BufferStats reports the number and total size of live buffers.
func BufferStats() (count, bytes int) {
	return buffers.Stats()
}
