package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts finished requests by outcome
	// ("responded" or a DispatchErrorCode).
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncframe_requests_total",
		Help: "Requests handled by outcome",
	}, []string{"outcome"})

	// passesPerRequest tracks how many passes a request needed.
	passesPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncframe_dispatch_passes",
		Help:    "Dispatch passes per request",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 64},
	})

	// firingsTotal counts then-action invocations by sync.
	firingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncframe_sync_firings_total",
		Help: "Sync firings by sync id",
	}, []string{"sync_id"})

	// actionFailuresTotal counts then-actions recorded as error-shaped entries.
	actionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncframe_action_failures_total",
		Help: "Failed concept calls by action and reason",
	}, []string{"action", "reason"})

	// recoveredTotal counts where/query failures that were turned into empty results.
	recoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncframe_recovered_failures_total",
		Help: "Recovered where and query failures by sync id and stage",
	}, []string{"sync_id", "stage"})
)
