// Package ports defines the interfaces the core calls out through.
// The host side implements them; the core depends only on the abstraction.
package ports
