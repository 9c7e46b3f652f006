package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualTickerFiresPerPeriod(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)
	tk := c.NewTicker(time.Hour)
	defer tk.Stop()

	c.Advance(30 * time.Minute)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Minute)
	select {
	case at := <-tk.C():
		assert.Equal(t, start.Add(time.Hour), at)
	default:
		t.Fatal("ticker did not fire")
	}
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestManualAfterFuncAndStop(t *testing.T) {
	c := NewManual(time.Unix(0, 0).UTC())
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })
	stopped := c.AfterFunc(5*time.Second, func() { fired += 100 })
	require.True(t, stopped.Stop())
	require.Equal(t, 1, c.Waiters())

	c.Advance(4 * time.Second)
	assert.Equal(t, 0, fired)
	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, c.Waiters())
	assert.False(t, stopped.Stop())
}

func TestManualTimer(t *testing.T) {
	c := NewManual(time.Unix(100, 0).UTC())
	tm := c.NewTimer(time.Minute)
	c.Advance(2 * time.Minute)
	at := <-tm.C()
	assert.Equal(t, time.Unix(160, 0).UTC(), at)
	assert.Equal(t, time.Unix(220, 0).UTC(), c.Now())
}
