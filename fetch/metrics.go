package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "pns_indexer"
	metricsSubsystem = "fetch"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rpc_requests_total",
		Help:      "Total number of eth_getLogs requests by contract role and outcome",
	}, []string{"role", "status"})

	rpcRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rpc_retries_total",
		Help:      "Total number of retried eth_getLogs requests by contract role",
	}, []string{"role"})

	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rpc_request_duration_seconds",
		Help:      "Latency of eth_getLogs requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"role"})

	logsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "logs_fetched_total",
		Help:      "Total number of logs returned by contract role",
	}, []string{"role"})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting on the request limiter",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)
