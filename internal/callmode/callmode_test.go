package callmode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Direct, From(ctx))
	assert.Equal(t, Request, From(With(ctx, Request)))
	assert.Equal(t, Direct, From(nil)) //nolint:staticcheck // nil is handled
}

func TestScopeRestoresOnPanic(t *testing.T) {
	var s Scope

	func() {
		defer func() { _ = recover() }()
		restore := s.Enter(Request)
		defer restore()
		assert.Equal(t, Request, s.Mode())
		panic("unwind")
	}()

	assert.Equal(t, Direct, s.Mode())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "request", Request.String())
	assert.Equal(t, "unknown", Mode(9).String())
}
