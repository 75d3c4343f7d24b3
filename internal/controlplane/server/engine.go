package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/betbot/botdash/internal/controlapi"
)

var ErrNotRunning = errors.New("Bot is not running")

// Engine is a simulated trading loop. It only heartbeats and counts cycles.
type Engine struct {
	mu        sync.Mutex
	running   bool
	startedAt time.Time
	lastCycle time.Time
	counters  controlapi.Counters

	every time.Duration
	logs  *LogRing
	stop  chan struct{}
	done  chan struct{}
	now   func() time.Time
}

func NewEngine(logs *LogRing, every time.Duration) *Engine {
	return &Engine{logs: logs, every: every, now: time.Now}
}

// Start returns a human message; starting twice is not an error.
func (e *Engine) Start() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return "Already running"
	}
	e.running = true
	e.startedAt = e.now()
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stop, e.done)
	e.logs.Add("Bot started")
	log.Info("engine started")
	return "Bot started"
}

func (e *Engine) Stop() (string, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return "", ErrNotRunning
	}
	e.running = false
	stop, done := e.stop, e.done
	e.mu.Unlock()

	close(stop)
	<-done
	e.logs.Add("Bot stopped")
	log.Info("engine stopped")
	return "Bot stopped", nil
}

// Shutdown stops the loop if it is running.
func (e *Engine) Shutdown() {
	_, _ = e.Stop()
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	e.mu.Lock()
	e.lastCycle = e.now()
	e.counters.Attempts++
	e.counters.Success++
	e.mu.Unlock()
	e.logs.Add("Bot Loop Heartbeat")
}

func (e *Engine) Status() controlapi.StatusResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	resp := controlapi.StatusResponse{
		Status:  controlapi.StatusStopped,
		Running: e.running,
		Uptime:  "0s",
	}
	counters := e.counters
	resp.Counters = &counters
	if e.running {
		resp.Status = controlapi.StatusRunning
		resp.Uptime = formatUptime(e.now().Sub(e.startedAt))
	}
	if !e.lastCycle.IsZero() {
		ts := e.lastCycle.Format(tsLayout)
		resp.LastCycle = &ts
	}
	return resp
}

// formatUptime renders "H:MM:SS", prefixed with days when over 24h.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	hms := fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	switch {
	case days == 1:
		return "1 day, " + hms
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
	return hms
}
