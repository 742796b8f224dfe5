package node

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/stratis-go/fullnode/blockpull"
	cfg "github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/download"
	"github.com/stratis-go/fullnode/libs/log"
)

// MetricsProvider returns the metrics of the puller and the downloader.
type MetricsProvider func() (*blockpull.Metrics, *download.Metrics)

// DefaultMetricsProvider returns Metrics build using Prometheus client library
// if Prometheus is enabled. Otherwise, it returns no-op Metrics.
func DefaultMetricsProvider(config *cfg.InstrumentationConfig) MetricsProvider {
	return func() (*blockpull.Metrics, *download.Metrics) {
		if config.Prometheus {
			return blockpull.PrometheusMetrics(config.Namespace),
				download.PrometheusMetrics(config.Namespace)
		}
		return blockpull.NopMetrics(), download.NopMetrics()
	}
}

// Pusher periodically pushes the default registry to a Prometheus push
// gateway.
type Pusher struct {
	*push.Pusher
	interval time.Duration
	done     chan struct{}
}

// MetricsPusher returns nil unless Prometheus is enabled and a push
// gateway is configured.
func MetricsPusher(config *cfg.InstrumentationConfig) *Pusher {
	if config.PushGatewayURL == "" || !config.Prometheus {
		return nil
	}

	p := push.New(config.PushGatewayURL, config.Namespace).Gatherer(prometheus.DefaultGatherer)
	return &Pusher{Pusher: p, interval: config.PushInterval, done: make(chan struct{}, 1)}
}

func (p *Pusher) Start(logger log.Logger) {
	if p == nil {
		return
	}
	for {
		err := p.Add()
		if err != nil {
			logger.Error("failed to push metrics", "err", err)
		}
		select {
		case <-p.done:
			return
		case <-time.After(p.interval):
		}
	}
}

func (p *Pusher) Stop() {
	if p == nil {
		return
	}
	p.done <- struct{}{}
}
