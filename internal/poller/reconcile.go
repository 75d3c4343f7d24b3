package poller

import (
	"context"

	"github.com/betbot/botdash/internal/viewstate"
	"github.com/betbot/botdash/pkg/syncgroup"
)

// Reconciler performs the out-of-band status fetch the command dispatcher
// forces after a successful start/stop. It shares the store's sequence guard
// with the poll loops, so neither can overwrite a fresher value of the other.
type Reconciler struct {
	store   *viewstate.Store
	auth    Authenticator
	sources []Source
}

func NewReconciler(store *viewstate.Store, auth Authenticator, sources ...Source) *Reconciler {
	return &Reconciler{store: store, auth: auth, sources: sources}
}

// ReconcileStatus reports whether at least one status source answered.
// Connectivity is left alone.
func (r *Reconciler) ReconcileStatus(ctx context.Context) bool {
	if !r.auth.IsAuthenticated() || len(r.sources) == 0 {
		return false
	}
	seq := r.store.Begin()
	results := make([]func(*viewstate.Patch), len(r.sources))
	g := syncgroup.NewSyncGroup()
	for i := range r.sources {
		g.Add(func() { results[i] = r.sources[i].Fetch(ctx) })
	}
	g.RunAndWait()

	var patch viewstate.Patch
	ok := false
	for _, apply := range results {
		if apply != nil {
			apply(&patch)
			ok = true
		}
	}
	if !ok || ctx.Err() != nil || !r.auth.IsAuthenticated() {
		return false
	}
	r.store.Publish(seq, patch)
	return true
}
