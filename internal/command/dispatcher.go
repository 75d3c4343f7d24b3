// Package command sends user commands to the control plane: start/stop of the
// bot, and simple configuration changes.
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/botdash/internal/controlapi"
	"github.com/betbot/botdash/internal/viewstate"
	"github.com/betbot/botdash/pkg/config"
)

var log = logrus.WithField("module", "command")

// ErrCommandFailed is returned when the control plane did not accept a command.
var ErrCommandFailed = errors.New("command failed")

type Action string

const (
	ActionStart Action = "START"
	ActionStop  Action = "STOP"
)

// Target is the run state an action asks for.
func (a Action) Target() (viewstate.CommandState, bool) {
	switch a {
	case ActionStart:
		return viewstate.CommandRunning, true
	case ActionStop:
		return viewstate.CommandStopped, true
	}
	return viewstate.CommandUnknown, false
}

// Poster is satisfied by remote.Client.
type Poster interface {
	PostJSON(ctx context.Context, path string, body any) bool
}

// Reconciler is satisfied by poller.Reconciler.
type Reconciler interface {
	ReconcileStatus(ctx context.Context) bool
}

// Observer receives command outcomes; implemented by internal/metrics.
type Observer interface {
	CommandDone(action string, ok bool)
}

type Options struct {
	Style    string // config.ControlStyleSet or config.ControlStyleSplit
	Observer Observer
}

// Dispatcher applies the optimistic state before the network call and rolls
// it back if the call fails. Concurrent dispatches are last-writer-wins: a
// failing older dispatch never reverts the state a newer one set.
type Dispatcher struct {
	store      *viewstate.Store
	poster     Poster
	reconciler Reconciler
	style      string
	observer   Observer

	mu  sync.Mutex
	gen uint64
}

func NewDispatcher(store *viewstate.Store, poster Poster, reconciler Reconciler, opts Options) *Dispatcher {
	if opts.Style == "" {
		opts.Style = config.ControlStyleSet
	}
	return &Dispatcher{
		store:      store,
		poster:     poster,
		reconciler: reconciler,
		style:      opts.Style,
		observer:   opts.Observer,
	}
}

// Dispatch sends one command. It returns nil once the control plane accepted
// it, ErrCommandFailed (wrapped) otherwise. A failed reconcile afterwards does
// not fail the command.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action) error {
	target, ok := action.Target()
	if !ok {
		return fmt.Errorf("unknown action %q", action)
	}

	d.mu.Lock()
	d.gen++
	gen := d.gen
	prev := d.store.CommandState()
	d.store.SetCommandState(target)
	d.mu.Unlock()

	log.Infof("dispatch %s (optimistic %s, was %s)", action, target, prev)
	accepted := d.send(ctx, action, target)
	d.observe(action, accepted)

	if !accepted {
		msg := fmt.Sprintf("%s command failed", action)
		d.mu.Lock()
		if d.gen == gen {
			d.store.SetCommandState(prev)
			d.store.SetCommandError(msg)
		}
		d.mu.Unlock()
		log.Warnf("%s rejected, reverted to %s", action, prev)
		return fmt.Errorf("%s: %w", action, ErrCommandFailed)
	}

	d.mu.Lock()
	if d.gen == gen {
		d.store.SetCommandError("")
	}
	d.mu.Unlock()
	if d.reconciler != nil && !d.reconciler.ReconcileStatus(ctx) {
		log.Warnf("%s accepted but status reconcile failed, keeping %s", action, target)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, action Action, target viewstate.CommandState) bool {
	if d.style == config.ControlStyleSplit {
		path := controlapi.PathControlStart
		if action == ActionStop {
			path = controlapi.PathControlStop
		}
		return d.poster.PostJSON(ctx, path, struct{}{})
	}
	return d.poster.PostJSON(ctx, controlapi.PathControlSet, controlapi.ControlSetRequest{Status: string(target)})
}

func (d *Dispatcher) observe(action Action, ok bool) {
	if d.observer != nil {
		d.observer.CommandDone(string(action), ok)
	}
}
