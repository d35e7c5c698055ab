// Package entities provides the core domain entities of the bridge.
// They are shared by the interpreter core, the host runtime and the
// boundary layer, and carry no behaviour of their own.
package entities
