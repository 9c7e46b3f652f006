package outbox

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-ledger/internal/domain/model"
)

type recordingHandler struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
	err   error
}

func (h *recordingHandler) Handle(ctx context.Context, evt model.LifecycleEvent) error {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, evt.Subscription.ID)
	return h.err
}

func (h *recordingHandler) Seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func quietLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func evt(id string) model.LifecycleEvent {
	return model.LifecycleEvent{Kind: model.EventExpired, Subscription: model.Subscription{ID: id}}
}

func TestOutbox_DeliversPublishedEvents(t *testing.T) {
	h := &recordingHandler{}
	o := New(h, Options{Workers: 2}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, o.Publish(context.Background(), evt(id)))
	}
	require.Eventually(t, func() bool { return len(h.Seen()) == 3 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, h.Seen())

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, o.Publish(context.Background(), evt("late")), ErrClosed)
}

func TestOutbox_PublishNeverBlocks(t *testing.T) {
	h := &recordingHandler{}
	o := New(h, Options{MaxPending: 2}, quietLogger()) // not running

	require.NoError(t, o.Publish(context.Background(), evt("a")))
	require.NoError(t, o.Publish(context.Background(), evt("b")))
	assert.ErrorIs(t, o.Publish(context.Background(), evt("c")), ErrFull)
	assert.Equal(t, 2, o.Pending())
}

func TestOutbox_DrainsQueuedEventsOnShutdown(t *testing.T) {
	h := &recordingHandler{}
	o := New(h, Options{Workers: 1}, quietLogger())
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, o.Publish(context.Background(), evt(id)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, o.Run(ctx))
	assert.Len(t, h.Seen(), 4)
	assert.Zero(t, o.Pending())
}

func TestOutbox_DrainTimeoutAbandonsStuckWork(t *testing.T) {
	h := &recordingHandler{block: make(chan struct{})}
	o := New(h, Options{Workers: 1, DrainTimeout: 20 * time.Millisecond}, quietLogger())
	require.NoError(t, o.Publish(context.Background(), evt("stuck")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	require.NoError(t, o.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, h.Seen())
}

func TestOutbox_HandlerFailureDoesNotStopDelivery(t *testing.T) {
	h := &recordingHandler{err: errors.New("chat down")}
	o := New(h, Options{Workers: 1}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	require.NoError(t, o.Publish(ctx, evt("a")))
	require.NoError(t, o.Publish(ctx, evt("b")))
	require.Eventually(t, func() bool { return len(h.Seen()) == 2 }, time.Second, 5*time.Millisecond)
}
