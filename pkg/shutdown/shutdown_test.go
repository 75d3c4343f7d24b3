package shutdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShutdownRunsInReverseOrderOnce(t *testing.T) {
	m := NewManager()
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) Handler {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	m.OnShutdown("store", record("store"))
	m.OnShutdown("poller", record("poller"))
	m.OnShutdown("metrics", record("metrics"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)
	m.Shutdown(ctx)

	require.Equal(t, []string{"metrics", "poller", "store"}, order)
}

func TestShutdownTimeoutSkipsRest(t *testing.T) {
	m := NewManager()
	ran := false
	m.OnShutdown("late", func(ctx context.Context) { ran = true })
	m.OnShutdown("slow", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m.Shutdown(ctx)

	if ran {
		t.Fatalf("超时后不应继续执行剩余回调")
	}
}
