package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c := NewInMemoryCache[string, int](time.Second)
	c.SetClock(func() time.Time { return now })

	c.Set("a", 1, 0)
	c.Set("b", 2, 5*time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "到达默认 TTL 后应过期")
	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Size())

	// Set 时顺带清理过期项
	now = now.Add(10 * time.Second)
	c.Set("c", 3, 0)
	assert.Equal(t, 1, c.Size())

	c.Delete("c")
	_, ok = c.Get("c")
	assert.False(t, ok)

	c.Set("d", 4, 0)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}
