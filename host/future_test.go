package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ThenRunsAfterSettle(t *testing.T) {
	rt := newRuntime(t)
	ctx := testContext(t)

	order := make(chan string, 3)
	require.NoError(t, rt.do(ctx, func() {
		f := rt.Delay(time.Millisecond, func() (any, error) { return 7, nil })
		f.Then(func(v any, err error) {
			order <- "first"
			// registered after settle: deferred to a later loop turn
			f.Then(func(any, error) { order <- "late" })
			order <- "first done"
		})
	}))

	for _, want := range []string{"first", "first done", "late"} {
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-ctx.Done():
			t.Fatal("future callbacks did not run")
		}
	}
}

func TestFuture_AwaitHonoursContext(t *testing.T) {
	rt := newRuntime(t)
	f := rt.newFuture()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rt.Await(ctx, f)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
