package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "pns_indexer"
)

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ticks_total",
		Help:      "Total number of scan ticks by result",
	}, []string{"status"})

	ticksSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ticks_skipped_total",
		Help:      "Total number of ticks dropped because a previous tick was still running",
	})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "tick_duration_seconds",
		Help:      "Duration of scan ticks",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	windowsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "windows_processed_total",
		Help:      "Total number of block windows committed",
	})

	eventsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_processed_total",
		Help:      "Total number of decoded events applied to the projection",
	})

	decodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "decode_errors_total",
		Help:      "Total number of malformed logs skipped",
	})

	checkpointBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "checkpoint_block",
		Help:      "Highest block fully processed",
	})

	chainHeadBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "chain_head_block",
		Help:      "Latest block reported by the chain provider",
	})

	isRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "running",
		Help:      "Whether periodic scanning is enabled (1) or stopped (0)",
	})
)
