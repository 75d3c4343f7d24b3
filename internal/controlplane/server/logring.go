package server

import (
	"fmt"
	"sync"
	"time"
)

// LogRing keeps the most recent engine log lines, formatted "[HH:MM:SS] msg".
type LogRing struct {
	mu    sync.Mutex
	lines []string
	size  int
	now   func() time.Time
}

func NewLogRing(size int) *LogRing {
	if size <= 0 {
		size = 200
	}
	return &LogRing{size: size, now: time.Now}
}

func (l *LogRing) Add(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", l.now().Format("15:04:05"), fmt.Sprintf(format, args...))
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	if over := len(l.lines) - l.size; over > 0 {
		l.lines = append(l.lines[:0], l.lines[over:]...)
	}
}

// Tail returns up to n most recent lines, oldest first.
func (l *LogRing) Tail(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.lines) {
		n = len(l.lines)
	}
	out := make([]string, n)
	copy(out, l.lines[len(l.lines)-n:])
	return out
}
