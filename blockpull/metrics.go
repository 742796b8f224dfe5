package blockpull

import (
	"github.com/go-kit/kit/metrics"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "blockpull"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Whether the consumer is waiting for the next block. 1 if yes, 0 if no.
	Stalling metrics.Gauge
	// Whether a producer is waiting for buffer space. 1 if yes, 0 if no.
	Full metrics.Gauge

	// Height of the last block handed to the consumer.
	LocationHeight metrics.Gauge
	// Height of the far edge of the requested window.
	LookaheadHeight metrics.Gauge

	// Bytes held by downloaded, unconsumed blocks.
	BufferedBytes metrics.Gauge
	// Number of downloaded, unconsumed blocks.
	BufferedBlocks metrics.Gauge

	// Number of blocks handed to the consumer.
	BlocksDelivered metrics.Counter
	// Size of the last delivered block in bytes.
	BlockSizeBytes metrics.Gauge

	// Number of windows passed to the requester.
	WindowRequests metrics.Counter
	// Number of block bodies requested.
	RequestedBlocks metrics.Counter

	// Number of chain reloads.
	ChainReloads metrics.Counter
	// Number of blocks rejected by the consumer.
	RejectedBlocks metrics.Counter
}
