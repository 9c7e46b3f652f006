// Package clock provides the wall clock used in production and a manual clock
// that tests advance explicitly.
package clock

import (
	"sort"
	"sync"
	"time"

	"subscription-ledger/internal/domain/ports/adapter"
)

var (
	_ adapter.Clock = Real{}
	_ adapter.Clock = (*Manual)(nil)
)

// Real is backed by package time.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

func (Real) NewTicker(d time.Duration) adapter.Ticker { return realTicker{time.NewTicker(d)} }

func (Real) NewTimer(d time.Duration) adapter.Timer { return realTimer{t: time.NewTimer(d)} }

func (Real) AfterFunc(d time.Duration, f func()) adapter.Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// Manual only moves when Advance or Set is called. Timers, tickers and
// AfterFunc callbacks due at the new time fire in deadline order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	m        *Manual
	deadline time.Time
	period   time.Duration // >0 for tickers
	ch       chan time.Time
	fn       func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTicker(d time.Duration) adapter.Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	return manualTicker{m.add(d, d, nil)}
}

func (m *Manual) NewTimer(d time.Duration) adapter.Timer { return m.add(d, 0, nil) }

func (m *Manual) AfterFunc(d time.Duration, f func()) adapter.Timer { return m.add(d, 0, f) }

// Waiters returns the number of pending timers and tickers, which lets tests
// wait until a goroutine has armed its timer before advancing.
func (m *Manual) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

func (m *Manual) add(d, period time.Duration, fn func()) *waiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &waiter{m: m, deadline: m.now.Add(d), period: period, ch: make(chan time.Time, 1), fn: fn}
	m.waiters = append(m.waiters, w)
	return w
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to t, firing everything due on the way.
func (m *Manual) Set(t time.Time) {
	for {
		m.mu.Lock()
		sort.SliceStable(m.waiters, func(i, j int) bool { return m.waiters[i].deadline.Before(m.waiters[j].deadline) })
		if len(m.waiters) == 0 || m.waiters[0].deadline.After(t) {
			if t.After(m.now) {
				m.now = t
			}
			m.mu.Unlock()
			return
		}
		w := m.waiters[0]
		if w.deadline.After(m.now) {
			m.now = w.deadline
		}
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
		} else {
			m.waiters = m.waiters[1:]
		}
		fireAt := m.now
		m.mu.Unlock()

		if w.fn != nil {
			w.fn()
			continue
		}
		select {
		case w.ch <- fireAt:
		default: // drop like time.Ticker when the reader is behind
		}
	}
}

func (w *waiter) C() <-chan time.Time { return w.ch }

func (w *waiter) Stop() bool {
	m := w.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.waiters {
		if x == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return true
		}
	}
	return false
}

type manualTicker struct{ w *waiter }

func (t manualTicker) C() <-chan time.Time { return t.w.ch }
func (t manualTicker) Stop()               { t.w.Stop() }
