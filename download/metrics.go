package download

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "download"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of headers waiting for a worker.
	QueuedBlocks metrics.Gauge
	// Number of blocks fetched and handed to the sink.
	FetchedBlocks metrics.Counter
	// Number of failed fetch attempts.
	FetchFailures metrics.Counter
	// Number of blocks dropped because they were rejected or left the chain.
	DroppedBlocks metrics.Counter
}

func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		QueuedBlocks: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "queued_blocks",
			Help:      "Number of headers waiting for a worker.",
		}, labels).With(labelsAndValues...),
		FetchedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fetched_blocks",
			Help:      "Number of blocks fetched and handed to the sink.",
		}, labels).With(labelsAndValues...),
		FetchFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fetch_failures",
			Help:      "Number of failed fetch attempts.",
		}, labels).With(labelsAndValues...),
		DroppedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_blocks",
			Help:      "Number of blocks dropped because they were rejected or left the chain.",
		}, labels).With(labelsAndValues...),
	}
}

func NopMetrics() *Metrics {
	return &Metrics{
		QueuedBlocks:  discard.NewGauge(),
		FetchedBlocks: discard.NewCounter(),
		FetchFailures: discard.NewCounter(),
		DroppedBlocks: discard.NewCounter(),
	}
}
