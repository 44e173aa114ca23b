package projection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pns_indexer",
		Subsystem: "projection",
		Name:      "events_total",
		Help:      "Total number of events handled by kind and outcome",
	}, []string{"kind", "outcome"})

	rawEventDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pns_indexer",
		Subsystem: "projection",
		Name:      "raw_event_duplicates_total",
		Help:      "Total number of audit inserts ignored because the log was already recorded",
	})

	sideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pns_indexer",
		Subsystem: "projection",
		Name:      "side_effect_failures_total",
		Help:      "Total number of failed cache invalidations and notifications",
	}, []string{"target"})

	nameHashMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pns_indexer",
		Subsystem: "projection",
		Name:      "name_hash_mismatch_total",
		Help:      "Total number of registrations whose name does not hash to the emitted node",
	})
)
