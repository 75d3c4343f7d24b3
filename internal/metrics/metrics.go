package metrics

import (
	"expvar"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_poll_cycles_total",
			Help: "Poll cycles published, by profile",
		},
		[]string{"profile"},
	)

	PollSourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_poll_source_failures_total",
			Help: "Failed fetches, by source",
		},
		[]string{"source"},
	)

	// fields rejected by the view state's sequence guard
	PollStaleDiscards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "botdash_poll_stale_discards_total",
			Help: "Results discarded because a newer one was already published",
		},
	)

	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_commands_total",
			Help: "Start/stop commands, by action and result",
		},
		[]string{"action", "result"},
	)

	// one series per state, flipped between 0 and 1
	Connectivity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botdash_connectivity",
			Help: "Connectivity to the control plane as seen by the last poll cycle",
		},
		[]string{"state"},
	)

	// expvar mirrors for /debug/vars
	cyclesVar   = expvar.NewInt("poll_cycles")
	commandsVar = expvar.NewInt("commands")
)

func init() {
	prometheus.MustRegister(PollCycles, PollSourceFailures, PollStaleDiscards, Commands, Connectivity)
}

// Observer feeds the collectors. It satisfies poller.Observer and command.Observer.
type Observer struct{}

func (Observer) CycleDone(profile string, online bool) {
	PollCycles.WithLabelValues(profile).Inc()
	cyclesVar.Add(1)
	if online {
		Connectivity.WithLabelValues("ONLINE").Set(1)
		Connectivity.WithLabelValues("OFFLINE").Set(0)
	} else {
		Connectivity.WithLabelValues("ONLINE").Set(0)
		Connectivity.WithLabelValues("OFFLINE").Set(1)
	}
}

func (Observer) SourceFailed(source string) {
	PollSourceFailures.WithLabelValues(source).Inc()
}

func (Observer) CommandDone(action string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	Commands.WithLabelValues(action, result).Inc()
	commandsVar.Add(1)
}

// StaleDiscard is hooked to viewstate.Store.OnStale.
func (Observer) StaleDiscard() {
	PollStaleDiscards.Inc()
}
