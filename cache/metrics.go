package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pns_indexer",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Domain lookups served from the cache",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pns_indexer",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Domain lookups that went to the projection store",
	})
)
