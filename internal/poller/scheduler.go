// Package poller runs the periodic fan-out that keeps the view state fresh.
//
// A Scheduler owns one Profile. Start runs a cycle immediately and then one per
// interval on a single goroutine, so cycles never overlap. Each cycle takes a
// sequence number from the store before it dispatches anything; the store
// drops any result older than what it already holds.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/botdash/internal/viewstate"
	"github.com/betbot/botdash/pkg/sigchan"
	"github.com/betbot/botdash/pkg/syncgroup"
)

var log = logrus.WithField("module", "poller")

// ErrUnauthenticated is returned by Start when there is no session.
var ErrUnauthenticated = errors.New("poller: not authenticated")

// Authenticator is satisfied by session.Guard.
type Authenticator interface {
	IsAuthenticated() bool
}

// Observer receives cycle outcomes; implemented by internal/metrics.
type Observer interface {
	CycleDone(profile string, online bool)
	SourceFailed(source string)
}

type noopObserver struct{}

func (noopObserver) CycleDone(string, bool) {}
func (noopObserver) SourceFailed(string)    {}

type Options struct {
	MaxBackoff time.Duration // cap for the OFFLINE backoff; 0 disables backoff
	Observer   Observer
}

type Scheduler struct {
	store      *viewstate.Store
	auth       Authenticator
	profile    Profile
	maxBackoff time.Duration
	observer   Observer
}

func New(store *viewstate.Store, auth Authenticator, profile Profile, opts Options) *Scheduler {
	if profile.Interval <= 0 {
		profile.Interval = 3 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Scheduler{
		store:      store,
		auth:       auth,
		profile:    profile,
		maxBackoff: opts.MaxBackoff,
		observer:   opts.Observer,
	}
}

func (s *Scheduler) Profile() Profile { return s.profile }

// Start begins polling. It refuses to start without a session, in which case
// no request is made at all.
func (s *Scheduler) Start(ctx context.Context) (*Handle, error) {
	if !s.auth.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		s:       s,
		cancel:  cancel,
		refresh: sigchan.New(1),
		done:    make(chan struct{}),
	}
	h.alive.Store(true)
	log.Infof("start polling profile=%s interval=%s", s.profile.Name, s.profile.Interval)
	go h.loop(ctx)
	return h, nil
}

// Handle controls one running poll loop.
type Handle struct {
	s       *Scheduler
	cancel  context.CancelFunc
	refresh *sigchan.Chan
	done    chan struct{}

	// publishMu makes "still alive" and "publish" one step relative to Stop
	publishMu sync.Mutex
	alive     atomic.Bool

	failures int // owned by the loop goroutine
}

// Stop cancels in-flight requests and guarantees nothing is published
// afterwards. It does not wait for the loop to exit; use Done for that.
// Safe to call from any goroutine, including a fetch of the same loop.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.publishMu.Lock()
	wasAlive := h.alive.Swap(false)
	h.publishMu.Unlock()
	h.cancel()
	if wasAlive {
		log.Infof("stop polling profile=%s", h.s.profile.Name)
	}
}

// Done is closed when the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Alive() bool { return h != nil && h.alive.Load() }

// Refresh asks for a cycle now. A request made during a cycle is queued and
// runs right after it; repeated requests collapse into one.
func (h *Handle) Refresh() bool {
	if !h.Alive() {
		return false
	}
	return h.refresh.Emit()
}

func (h *Handle) loop(ctx context.Context) {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("poll loop panic: %v", r)
			h.Stop()
		}
	}()

	if !h.cycle(ctx) {
		return
	}
	for {
		t := time.NewTimer(h.nextDelay())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		case <-h.refresh.C():
			t.Stop()
		}
		if !h.cycle(ctx) {
			return
		}
	}
}

// nextDelay is the interval, doubled per consecutive OFFLINE cycle beyond the
// first and capped at maxBackoff.
func (h *Handle) nextDelay() time.Duration {
	return Backoff(h.s.profile.Interval, h.failures, h.s.maxBackoff)
}

// Backoff returns interval * 2^(failures-1), capped at ceiling. failures <= 1
// or ceiling <= 0 yield the plain interval; a ceiling below interval never
// shortens the delay.
func Backoff(interval time.Duration, failures int, ceiling time.Duration) time.Duration {
	if failures <= 1 || ceiling <= 0 {
		return interval
	}
	if ceiling < interval {
		ceiling = interval
	}
	d := interval
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

// cycle runs one fan-out and publishes it. It returns false when the loop
// should exit.
func (h *Handle) cycle(ctx context.Context) bool {
	if !h.Alive() || ctx.Err() != nil {
		return false
	}
	if !h.s.auth.IsAuthenticated() {
		log.Infof("session gone, stop polling profile=%s", h.s.profile.Name)
		h.Stop()
		return false
	}

	seq := h.s.store.Begin()
	patch, online, hasVerdict := h.collect(ctx)

	if hasVerdict {
		conn := viewstate.ConnectivityOffline
		if online {
			conn = viewstate.ConnectivityOnline
		}
		patch.Connectivity = &conn
	}

	h.publishMu.Lock()
	if !h.alive.Load() || ctx.Err() != nil {
		h.publishMu.Unlock()
		log.Debugf("discard cycle %d after stop", seq)
		return false
	}
	h.s.store.Publish(seq, patch)
	h.publishMu.Unlock()

	if online {
		h.failures = 0
	} else {
		h.failures++
	}
	h.s.observer.CycleDone(h.s.profile.Name, online)
	return true
}

// collect fetches every source concurrently and waits for all of them. The
// verdict follows the critical sources, or any success when none is critical.
func (h *Handle) collect(ctx context.Context) (patch viewstate.Patch, online bool, hasVerdict bool) {
	sources := h.s.profile.Sources
	results := make([]func(*viewstate.Patch), len(sources))

	g := syncgroup.NewSyncGroup()
	for i := range sources {
		g.Add(func() {
			results[i] = sources[i].Fetch(ctx)
		})
	}
	g.RunAndWait()
	for _, err := range g.Panics() {
		log.Errorf("profile %s: %v", h.s.profile.Name, err)
	}

	criticalOK, criticalSeen, anyOK := true, false, false
	for i, src := range sources {
		if src.Critical {
			criticalSeen = true
		}
		if results[i] == nil {
			h.s.observer.SourceFailed(src.Name)
			if src.Critical {
				criticalOK = false
			}
			continue
		}
		anyOK = true
		results[i](&patch)
	}
	if len(sources) == 0 {
		return patch, true, false
	}
	if criticalSeen {
		return patch, criticalOK, true
	}
	return patch, anyOK, true
}
