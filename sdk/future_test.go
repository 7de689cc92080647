package sdk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureSettlesOnce(t *testing.T) {
	f := newFuture[int]()
	select {
	case <-f.Done():
		t.Fatal("future settled early")
	default:
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() { f.resolve(i, nil) })
	}
	wg.Wait()

	first, err := await(t, f)
	require.NoError(t, err)
	again, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestResolvedAndRejected(t *testing.T) {
	v, err := await(t, Resolved("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	boom := errors.New("boom")
	_, err = await(t, Rejected[string](boom))
	assert.ErrorIs(t, err, boom)
}

func TestAwaitHonoursContext(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.resolve(7, nil)
	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
