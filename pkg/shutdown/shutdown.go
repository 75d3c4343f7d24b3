package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/botdash/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context)

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
// 回调按注册的逆序串行执行（后启动的先关闭），Shutdown 只会生效一次
type Manager struct {
	mu        sync.Mutex
	callbacks []namedHandler
	once      sync.Once
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用）
// ctx 应该带超时；超时后剩余回调不再执行
func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		m.mu.Lock()
		callbacks := append([]namedHandler(nil), m.callbacks...)
		m.mu.Unlock()

		if len(callbacks) == 0 {
			logger.Info("没有注册的关闭回调")
			return
		}
		logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

		for i := len(callbacks) - 1; i >= 0; i-- {
			cb := callbacks[i]
			if ctx.Err() != nil {
				logger.Warnf("关闭超时，跳过: %s (%v)", cb.name, ctx.Err())
				continue
			}
			done := make(chan struct{})
			go func() {
				defer close(done)
				cb.fn(ctx)
			}()
			select {
			case <-done:
				logger.Debugf("关闭回调完成: %s", cb.name)
			case <-ctx.Done():
				logger.Warnf("关闭回调超时: %s (%v)", cb.name, ctx.Err())
			}
		}
		logger.Info("所有关闭回调已完成")
	})
}
