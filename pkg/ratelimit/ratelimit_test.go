package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestSlidingWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	sw := NewSlidingWindow(2, time.Minute)
	sw.now = clk.now

	require.True(t, sw.Allow())
	clk.advance(10 * time.Second)
	require.True(t, sw.Allow())
	require.False(t, sw.Allow())
	require.Equal(t, 0, sw.GetRemaining())
	require.Equal(t, clk.t.Add(-10*time.Second).Add(time.Minute), sw.GetResetTime())

	clk.advance(51 * time.Second)
	require.Equal(t, 1, sw.GetRemaining())
	require.True(t, sw.Allow())

	sw.Reset()
	require.Equal(t, 2, sw.GetRemaining())
}

func TestKeyedLimiter(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	k := NewKeyedLimiter(1, time.Minute)
	k.now = clk.now

	require.True(t, k.Allow("10.0.0.1"))
	require.False(t, k.Allow("10.0.0.1"))
	require.True(t, k.Allow("10.0.0.2"))

	k.Reset("10.0.0.1")
	require.True(t, k.Allow("10.0.0.1"))

	clk.advance(2 * time.Minute)
	require.Equal(t, 2, k.Sweep())
}
