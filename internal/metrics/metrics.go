// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	FriendRequests             *prometheus.CounterVec
	Follows                    *prometheus.CounterVec
	NotificationsCreated       *prometheus.CounterVec
	RealtimeEvents             *prometheus.CounterVec
	ActiveSubscriptions        prometheus.Gauge
	RelationshipStatusFailures prometheus.Counter
	InteractionEvents          *prometheus.CounterVec
	RequestsTotal              *prometheus.CounterVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FriendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relations_friend_request_operations_total",
				Help: "Friend request operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Follows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relations_follow_operations_total",
				Help: "Follow and unfollow operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		NotificationsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relations_notifications_created_total",
				Help: "Notifications persisted, by type",
			},
			[]string{"type"},
		),
		RealtimeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relations_realtime_events_total",
				Help: "Realtime notification events handed to subscribers, by result",
			},
			[]string{"result"},
		),
		ActiveSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relations_realtime_subscriptions",
				Help: "Open realtime subscriptions on this instance",
			},
		),
		RelationshipStatusFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relations_relationship_status_failures_total",
				Help: "Relationship status lookups answered with the default after an internal error",
			},
		),
		InteractionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relations_interaction_events_total",
				Help: "Interaction events consumed from NATS, by subject and outcome",
			},
			[]string{"subject", "outcome"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relations_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"path", "class"},
		),
	}

	reg.MustRegister(
		m.FriendRequests,
		m.Follows,
		m.NotificationsCreated,
		m.RealtimeEvents,
		m.ActiveSubscriptions,
		m.RelationshipStatusFailures,
		m.InteractionEvents,
		m.RequestsTotal,
	)
	return m
}

// NewNop returns collectors that are not registered anywhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
