package terminal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpdesk",
		Name:      "orders_submitted_total",
		Help:      "Orders accepted by an exchange.",
	}, []string{"exchange"})

	ordersFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpdesk",
		Name:      "orders_failed_total",
		Help:      "Orders rejected or errored after retries.",
	}, []string{"exchange"})

	ordersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpdesk",
		Name:      "orders_skipped_total",
		Help:      "Submissions skipped before any network call.",
	}, []string{"exchange"})

	campaignRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpdesk",
		Name:      "campaign_rounds_total",
		Help:      "Campaign rounds executed, by group and campaign kind.",
	}, []string{"group", "kind"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "perpdesk",
		Name:      "events_dropped_total",
		Help:      "Events dropped because the consumer channel was full.",
	})
)
