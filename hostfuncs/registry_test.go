package hostfuncs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

func echo(_ context.Context, args []any) (any, error) {
	return args, nil
}

func TestNewRegistry_Empty(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())
	assert.Zero(t, reg.Len())
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()

	id, err := reg.Register("echo", echo)
	require.NoError(t, err)
	assert.NotZero(t, id)

	byID, ok := reg.LookupByID(id)
	require.True(t, ok)
	byName, ok := reg.LookupByName("echo")
	require.True(t, ok)
	assert.Same(t, byID, byName, "both indices point at one registration")

	out, err := byID.Func(context.Background(), []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, out)

	assert.Equal(t, []string{"echo"}, reg.Names())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_IDsAreUnique(t *testing.T) {
	reg := NewRegistry()
	a, err := reg.Register("a", echo)
	require.NoError(t, err)
	b, err := reg.Register("b", echo)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register("", echo)
	assert.ErrorContains(t, err, "cannot be empty")

	_, err = reg.Register("nil", nil)
	assert.Error(t, err)

	_, err = reg.Register("dup", echo)
	require.NoError(t, err)
	_, err = reg.Register("dup", echo)
	assert.ErrorContains(t, err, "duplicate handler name")
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	id, err := reg.Register("echo", echo)
	require.NoError(t, err)

	reg.Unregister(id)
	reg.Unregister(id)
	reg.Unregister(9999999)

	_, ok := reg.LookupByID(id)
	assert.False(t, ok)
	_, ok = reg.LookupByName("echo")
	assert.False(t, ok)
	assert.Zero(t, reg.Len())

	newID, err := reg.Register("echo", echo)
	require.NoError(t, err, "the name is free again")
	assert.NotEqual(t, id, newID)
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("echo", echo)
	require.NoError(t, err)

	reg.Close()
	assert.Zero(t, reg.Len())

	_, err = reg.Register("later", echo)
	assert.ErrorIs(t, err, errors.ErrDisposed)
}

func TestRegistry_RegisterBundle(t *testing.T) {
	reg := NewRegistry()
	got, err := reg.RegisterBundle(MapBundle{"a": echo, "b": echo})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func TestRegistry_RegisterBundleRollsBack(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("b", echo)
	require.NoError(t, err)

	_, err = reg.RegisterBundle(MapBundle{"a": echo, "b": echo})
	require.Error(t, err)
	assert.Equal(t, []string{"b"}, reg.Names(), "partial registrations are removed")
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := reg.Register(string(rune('A'+i)), echo)
			if !assert.NoError(t, err) {
				return
			}
			_, ok := reg.LookupByID(id)
			assert.True(t, ok)
			reg.Unregister(id)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, reg.Len())
}
