// Package ffi is the flat, handle-based boundary of the bridge.
//
// Every exported operation returns a Status and never panics: a panic inside
// the core is recovered and reported as a boundary error through LastError.
// Values leaving the core are JSON documents in tracked buffers. The
// receiver owns each returned Handle and must release it with FreeBuffer
// exactly once. Buffers passed to a Callback follow the same rule in the
// other direction: the host frees the argument buffer, and the core frees
// the envelope buffer the callback returns.
//
// All engines created here live on engine.Default().
package ffi
