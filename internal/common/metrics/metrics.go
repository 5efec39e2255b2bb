// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BroadcastRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_rounds_total",
			Help: "Total number of broadcast rounds created",
		},
	)

	BroadcastMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Broadcast offer messages by delivery result",
		},
		[]string{"result"},
	)

	BroadcastTokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_tokens_issued_total",
			Help: "Response tokens minted per action kind",
		},
		[]string{"action"},
	)

	AdmissionClicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_clicks_total",
			Help: "Link clicks handled by the admission controller",
		},
		[]string{"action", "result"},
	)

	AdmissionRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_records_total",
			Help: "Outcomes of the record-delivery admission worker",
		},
		[]string{"result"},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Requests to the action entry point",
		},
		[]string{"action", "result"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of action requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	RoundsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_rounds_closed_total",
			Help: "Rounds closed by the scheduler",
		},
	)
)
