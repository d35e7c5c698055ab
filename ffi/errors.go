package ffi

import stdErrors "errors"

var (
	errNilCallback   = stdErrors.New("callback is required")
	errEmptyEnvelope = stdErrors.New("callback returned no envelope")
	errUnknownBuffer = stdErrors.New("callback returned an unknown buffer")
	errUnknownKind   = stdErrors.New("unknown schema kind")
)
