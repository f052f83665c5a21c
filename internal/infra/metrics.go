package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MetricSessionsLive tracks currently connected sessions.
	MetricSessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clan_sessions_live",
			Help: "Currently connected sessions",
		},
	)

	// MetricEventsBroadcast counts events fanned out, per event name.
	MetricEventsBroadcast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clan_events_broadcast_total",
			Help: "Events fanned out to rooms",
		},
		[]string{"event"},
	)

	// MetricRateLimited counts rejected writes, per originating action.
	MetricRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clan_rate_limited_total",
			Help: "Writes rejected by the sliding-window limiter",
		},
		[]string{"action"},
	)

	// MetricActionsDispatched counts pending actions sent to agents.
	MetricActionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clan_pending_actions_dispatched_total",
			Help: "Pending actions dispatched to execution agents",
		},
		[]string{"type"},
	)

	// MetricActionsResolved counts pending-action outcomes.
	MetricActionsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clan_pending_actions_resolved_total",
			Help: "Pending actions resolved, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		MetricSessionsLive,
		MetricEventsBroadcast,
		MetricRateLimited,
		MetricActionsDispatched,
		MetricActionsResolved,
	)
}
