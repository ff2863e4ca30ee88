package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AcceptsTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_share", Name: "accepts_total", Help: "Total offers and requests accepted"})
	SettlementsTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_share", Name: "settlements_total", Help: "Total rides settled"})
	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_share", Name: "settlement_failures_total", Help: "Settlements rejected for insufficient points"})
	PointsTransferred  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_share", Name: "points_transferred_total", Help: "Total points moved from riders to drivers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_share", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_share",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
