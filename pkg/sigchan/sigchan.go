package sigchan

// Chan 非阻塞的信号 channel，只通知不传数据
// 缓冲满时 Emit 直接丢弃，多次 Emit 合并为一次
type Chan struct {
	c chan struct{}
}

// New 创建新的信号 channel，bufferSize 最小为 1
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞），返回是否真正入队
func (c *Chan) Emit() bool {
	select {
	case c.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Drain 清空已排队的信号，返回清掉的数量
func (c *Chan) Drain() int {
	n := 0
	for {
		select {
		case <-c.c:
			n++
		default:
			return n
		}
	}
}
