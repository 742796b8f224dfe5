package blockpull

import (
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics returns Metrics registered with the default Prometheus
// registerer. labelsAndValues are alternating label names and values.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Stalling: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "stalling",
			Help:      "Whether the consumer is waiting for the next block. 1 if yes, 0 if no.",
		}, labels).With(labelsAndValues...),
		Full: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "full",
			Help:      "Whether a producer is waiting for buffer space. 1 if yes, 0 if no.",
		}, labels).With(labelsAndValues...),
		LocationHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "location_height",
			Help:      "Height of the last block handed to the consumer.",
		}, labels).With(labelsAndValues...),
		LookaheadHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "lookahead_height",
			Help:      "Height of the far edge of the requested window.",
		}, labels).With(labelsAndValues...),
		BufferedBytes: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "buffered_bytes",
			Help:      "Bytes held by downloaded, unconsumed blocks.",
		}, labels).With(labelsAndValues...),
		BufferedBlocks: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "buffered_blocks",
			Help:      "Number of downloaded, unconsumed blocks.",
		}, labels).With(labelsAndValues...),
		BlocksDelivered: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_delivered",
			Help:      "Number of blocks handed to the consumer.",
		}, labels).With(labelsAndValues...),
		BlockSizeBytes: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "block_size_bytes",
			Help:      "Size of the last delivered block in bytes.",
		}, labels).With(labelsAndValues...),
		WindowRequests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "window_requests",
			Help:      "Number of windows passed to the requester.",
		}, labels).With(labelsAndValues...),
		RequestedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requested_blocks",
			Help:      "Number of block bodies requested.",
		}, labels).With(labelsAndValues...),
		ChainReloads: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "chain_reloads",
			Help:      "Number of chain reloads.",
		}, labels).With(labelsAndValues...),
		RejectedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected_blocks",
			Help:      "Number of blocks rejected by the consumer.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns Metrics that discard everything.
func NopMetrics() *Metrics {
	return &Metrics{
		Stalling:        discard.NewGauge(),
		Full:            discard.NewGauge(),
		LocationHeight:  discard.NewGauge(),
		LookaheadHeight: discard.NewGauge(),
		BufferedBytes:   discard.NewGauge(),
		BufferedBlocks:  discard.NewGauge(),
		BlocksDelivered: discard.NewCounter(),
		BlockSizeBytes:  discard.NewGauge(),
		WindowRequests:  discard.NewCounter(),
		RequestedBlocks: discard.NewCounter(),
		ChainReloads:    discard.NewCounter(),
		RejectedBlocks:  discard.NewCounter(),
	}
}
