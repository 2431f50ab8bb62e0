// Package metrics exposes Prometheus instrumentation for the webhook core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts inbound webhook deliveries.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labflow_messages_received_total",
		Help: "Inbound WhatsApp webhook deliveries.",
	})

	// IntentsOpened counts newly classified conversations by kind.
	IntentsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labflow_intents_opened_total",
		Help: "New multi-turn intents opened, by kind.",
	}, []string{"kind"})

	// IntentsCompleted counts committed conversations by kind.
	IntentsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labflow_intents_completed_total",
		Help: "Intents completed by a successful commit, by kind.",
	}, []string{"kind"})

	// IntentsCanceled counts explicit cancellations by kind.
	IntentsCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labflow_intents_canceled_total",
		Help: "Intents canceled by a stop phrase, by kind.",
	}, []string{"kind"})

	// CommitFailures counts storage failures on the commit path by kind.
	CommitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labflow_commit_failures_total",
		Help: "Storage failures while committing a completed flow, by kind.",
	}, []string{"kind"})
)
