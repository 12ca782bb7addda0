// Package metrics declares the Prometheus collectors exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts inbound Telegram updates by kind.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviebot_updates_total",
		Help: "Inbound Telegram updates by kind.",
	}, []string{"kind"})

	// StartOutcomesTotal counts deep-link resolutions by final state.
	StartOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviebot_start_outcomes_total",
		Help: "Deep-link start requests by resulting state.",
	}, []string{"state"})

	// TokensIssuedTotal counts download tokens handed out.
	TokensIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moviebot_tokens_issued_total",
		Help: "Download tokens issued.",
	})

	// TokensCleanedTotal counts token rows removed by cleanup sweeps.
	TokensCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moviebot_tokens_cleaned_total",
		Help: "Token rows removed by cleanup sweeps.",
	})

	// DeliveriesTotal counts file deliveries by send mode and result.
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviebot_deliveries_total",
		Help: "File deliveries by mode and result.",
	}, []string{"mode", "result"})

	// ExternalFailuresTotal counts degraded external lookups by dependency.
	ExternalFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviebot_external_failures_total",
		Help: "External dependency failures that were degraded locally.",
	}, []string{"dependency"})

	// BroadcastMessagesTotal counts broadcast copies by result.
	BroadcastMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviebot_broadcast_messages_total",
		Help: "Broadcast message copies by result.",
	}, []string{"result"})

	// MetadataCacheTotal counts metadata cache lookups by result.
	MetadataCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moviebot_metadata_cache_total",
		Help: "Metadata cache lookups by hit or miss.",
	}, []string{"result"})
)
