package syncgroup

import (
	"fmt"
	"sync"
)

// SyncGroup 包装 sync.WaitGroup：先 Add 收集函数，Run 一次性并发启动，Wait 等全部结束
// 单个函数 panic 会被捕获并记入 Panics()，不会拖垮其它函数
type SyncGroup struct {
	wg sync.WaitGroup

	mu     sync.Mutex
	funcs  []func()
	panics []error
	ran    bool
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个函数；Run 之后再 Add 的函数会被忽略
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ran {
		return
	}
	g.funcs = append(g.funcs, fn)
}

// Run 启动所有已添加的函数，只生效一次
func (g *SyncGroup) Run() {
	g.mu.Lock()
	if g.ran {
		g.mu.Unlock()
		return
	}
	g.ran = true
	fns := g.funcs
	g.funcs = nil
	g.mu.Unlock()

	g.wg.Add(len(fns))
	for _, fn := range fns {
		go func(doFunc func()) {
			defer g.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					g.mu.Lock()
					g.panics = append(g.panics, fmt.Errorf("syncgroup: panic: %v", r))
					g.mu.Unlock()
				}
			}()
			doFunc()
		}(fn)
	}
}

// Wait 等待所有函数完成
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// RunAndWait Run + Wait
func (g *SyncGroup) RunAndWait() {
	g.Run()
	g.Wait()
}

// Panics 返回运行期间捕获的 panic
func (g *SyncGroup) Panics() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.panics...)
}
