package worker

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPool_StopDrainsQueuedTasks(t *testing.T) {
	p := NewPool(2, quietLogger())
	p.Start(context.Background())

	var ran int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.SubmitWait(context.Background(), func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}
	p.Stop()
	assert.EqualValues(t, 8, atomic.LoadInt32(&ran))

	assert.ErrorIs(t, p.Submit(func(ctx context.Context) error { return nil }), ErrPoolClosed)
	p.Stop() // second stop is a no-op
}

func TestPool_SubmitReportsFullQueue(t *testing.T) {
	p := NewPool(1, quietLogger()) // not started, queue holds 4
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	}
	assert.ErrorIs(t, p.Submit(func(ctx context.Context) error { return nil }), ErrQueueFull)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.SubmitWait(ctx, func(ctx context.Context) error { return nil }), context.DeadlineExceeded)
}

func TestPool_SurvivesPanickingTask(t *testing.T) {
	p := NewPool(1, quietLogger())
	p.Start(context.Background())

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { close(done); return nil }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died with the panicking task")
	}
	p.Stop()
}
