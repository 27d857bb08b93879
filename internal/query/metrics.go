package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libraryfinder",
		Subsystem: "query",
		Name:      "requests_total",
		Help:      "Fetch requests by query and result (hit, miss, shared, error, disabled, canceled).",
	}, []string{"query", "result"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "libraryfinder",
		Subsystem: "query",
		Name:      "fetch_duration_seconds",
		Help:      "Provider fetch latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"query", "outcome"})
)
