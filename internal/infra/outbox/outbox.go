// Package outbox decouples committed ledger changes from their external side
// effects. Publish only appends to an in-process queue, so it is safe to call
// while a storage transaction is open; workers drain the queue afterwards.
package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/adapter"
	"subscription-ledger/internal/infra/metrics"
	"subscription-ledger/internal/infra/worker"
	"subscription-ledger/internal/usecase"
)

var _ adapter.EventPublisher = (*Outbox)(nil)

var (
	ErrFull   = errors.New("outbox: queue full")
	ErrClosed = errors.New("outbox: closed")
)

// Handler applies one event's side effects.
type Handler interface {
	Handle(ctx context.Context, evt model.LifecycleEvent) error
}

type Options struct {
	Workers      int
	MaxPending   int
	DrainTimeout time.Duration
}

type Outbox struct {
	handler Handler
	pool    *worker.Pool
	opts    Options

	mu      sync.Mutex
	pending []model.LifecycleEvent
	closed  bool
	wake    chan struct{}

	log *zerolog.Logger
}

func New(handler Handler, opts Options, logger *zerolog.Logger) *Outbox {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 10000
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	l := logger.With().Str("component", "Outbox").Logger()
	return &Outbox{
		handler: handler,
		pool:    worker.NewPool(opts.Workers, &l),
		opts:    opts,
		wake:    make(chan struct{}, 1),
		log:     &l,
	}
}

// Publish queues evt and returns immediately.
func (o *Outbox) Publish(_ context.Context, evt model.LifecycleEvent) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		metrics.IncOutboxEvent(string(evt.Kind), "dropped")
		return ErrClosed
	}
	if len(o.pending) >= o.opts.MaxPending {
		o.mu.Unlock()
		metrics.IncOutboxEvent(string(evt.Kind), "dropped")
		return ErrFull
	}
	o.pending = append(o.pending, evt)
	n := len(o.pending)
	o.mu.Unlock()

	metrics.SetOutboxPending(n)
	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued events not yet handed to a worker.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Run dispatches events until ctx is done, then stops accepting new ones and
// gives queued events up to DrainTimeout to finish.
func (o *Outbox) Run(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	o.pool.Start(workCtx)
	o.log.Info().Int("workers", o.opts.Workers).Msg("outbox started")

	for {
		o.dispatch(workCtx)
		select {
		case <-o.wake:
		case <-ctx.Done():
			o.mu.Lock()
			o.closed = true
			o.mu.Unlock()
			o.drain(workCtx, cancelWork)
			return nil
		}
	}
}

func (o *Outbox) drain(workCtx context.Context, cancelWork context.CancelFunc) {
	deadline := time.NewTimer(o.opts.DrainTimeout)
	defer deadline.Stop()

	done := make(chan struct{})
	go func() {
		o.dispatch(workCtx)
		o.pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		o.log.Info().Msg("outbox drained")
	case <-deadline.C:
		cancelWork()
		<-done
		o.log.Warn().Int("abandoned", o.Pending()).Msg("outbox drain timed out")
	}
}

func (o *Outbox) dispatch(ctx context.Context) {
	for {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.mu.Unlock()
			metrics.SetOutboxPending(0)
			return
		}
		evt := o.pending[0]
		o.pending[0] = model.LifecycleEvent{}
		o.pending = o.pending[1:]
		n := len(o.pending)
		o.mu.Unlock()
		metrics.SetOutboxPending(n)

		if err := o.pool.SubmitWait(ctx, o.task(evt)); err != nil {
			o.requeue(evt)
			return
		}
	}
}

// requeue puts an event that could not be submitted back at the front.
func (o *Outbox) requeue(evt model.LifecycleEvent) {
	o.mu.Lock()
	o.pending = append([]model.LifecycleEvent{evt}, o.pending...)
	o.mu.Unlock()
}

func (o *Outbox) task(evt model.LifecycleEvent) worker.Task {
	return func(ctx context.Context) error {
		kind := string(evt.Kind)
		err := o.handler.Handle(ctx, evt)
		if err == nil {
			metrics.IncOutboxEvent(kind, "delivered")
			return nil
		}
		metrics.IncOutboxEvent(kind, "failed")
		var ee *usecase.EffectError
		if errors.As(err, &ee) {
			for _, effect := range ee.Effects {
				metrics.IncNotificationFailure(effect)
			}
		}
		o.log.Error().Err(err).
			Str("kind", kind).
			Str("subscription_id", evt.Subscription.ID).
			Msg("lifecycle event side effects failed")
		return nil
	}
}
