// Package node wires the header and block stores, the lookahead puller and
// the downloader into a full node that pulls blocks up to its header tip.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/stratis-go/fullnode/blockpull"
	"github.com/stratis-go/fullnode/chain"
	cfg "github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/download"
	"github.com/stratis-go/fullnode/libs/log"
	"github.com/stratis-go/fullnode/libs/service"
	"github.com/stratis-go/fullnode/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	// blocks between two progress lines
	statusInterval = 500
)

// Node pulls blocks in chain order and hands them to a BlockProcessor.
// It stops on its own once it reaches the header tip or the configured
// stop height; Done is closed then.
type Node struct {
	service.BaseService

	config *cfg.Config

	headerDB   dbm.DB
	blockDB    dbm.DB
	headers    *store.HeaderStore
	blocks     *store.BlockStore
	puller     *blockpull.LookaheadPuller
	downloader *download.Downloader
	processor  BlockProcessor

	prometheusSrv *http.Server
	pusher        *Pusher

	traceOutput    io.Writer
	tracerProvider *sdktrace.TracerProvider
	profiler       *pyroscope.Profiler

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Option sets a parameter for the node.
type Option func(*Node)

// CustomBlockProcessor replaces DefaultBlockProcessor.
func CustomBlockProcessor(processor BlockProcessor) Option {
	return func(n *Node) { n.processor = processor }
}

// TraceOutput sets where finished spans are written when tracing is
// enabled. Defaults to os.Stdout.
func TraceOutput(w io.Writer) Option {
	return func(n *Node) { n.traceOutput = w }
}

// NewNode returns a new, ready to go, Node.
func NewNode(
	config *cfg.Config,
	dbProvider cfg.DBProvider,
	metricsProvider MetricsProvider,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	headerDB, blockDB, err := initDBs(config, dbProvider)
	if err != nil {
		return nil, err
	}
	closeDBs := func() {
		headerDB.Close()
		blockDB.Close()
	}

	headers, err := store.NewHeaderStore(headerDB)
	if err != nil {
		closeDBs()
		return nil, err
	}
	blocks, err := store.NewBlockStore(blockDB)
	if err != nil {
		closeDBs()
		return nil, err
	}

	n := &Node{
		config:      config,
		headerDB:    headerDB,
		blockDB:     blockDB,
		headers:     headers,
		blocks:      blocks,
		processor:   DefaultBlockProcessor(),
		traceOutput: os.Stdout,
		done:        make(chan struct{}),
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	for _, option := range options {
		option(n)
	}

	pullMetrics, downloadMetrics := metricsProvider()
	pullOpts := []blockpull.PullerOption{blockpull.WithMetrics(pullMetrics)}
	downloadOpts := []download.DownloaderOption{download.WithMetrics(downloadMetrics)}

	tp, provider, err := setupTracing(config.Instrumentation, n.traceOutput)
	if err != nil {
		closeDBs()
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	if tp != nil {
		n.tracerProvider = tp
		pullOpts = append(pullOpts, blockpull.WithTracer(provider.Tracer("blockpull")))
		downloadOpts = append(downloadOpts, download.WithTracer(provider.Tracer("download")))
	}

	fetcher := download.NewStoreFetcher(blocks, config.Download.SimulatedLatency)
	n.downloader = download.NewDownloader(config.Download, fetcher, nil,
		logger.With("module", "download"), downloadOpts...)
	n.puller = blockpull.NewLookaheadPuller(config.BlockPull, headers, n.downloader,
		logger.With("module", "blockpull"), pullOpts...)
	n.downloader.SetSink(n.puller)

	return n, nil
}

// OnStart starts the downloader, the metrics endpoints and the pull loop.
// On failure everything started so far is stopped and the databases are
// closed, since OnStop will not run.
func (n *Node) OnStart() (err error) {
	defer func() {
		if err != nil {
			n.release()
		}
	}()

	if n.headers.Height() < 0 {
		return errors.New("no headers stored, nothing to pull")
	}
	genesis, err := n.headers.LoadHeader(0)
	if err != nil {
		return err
	}
	if err := n.puller.SetLocation(genesis); err != nil {
		return err
	}

	if n.profiler, err = setupPyroscope(n.config.Instrumentation); err != nil {
		return fmt.Errorf("starting pyroscope: %w", err)
	}
	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		if n.prometheusSrv, err = n.startPrometheusServer(); err != nil {
			return err
		}
	}
	if err := n.downloader.Start(); err != nil {
		return err
	}

	n.pusher = MetricsPusher(n.config.Instrumentation)
	go n.pusher.Start(n.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go func() {
		defer close(n.done)
		n.err = n.pullBlocks(ctx)
		if n.err != nil {
			n.Logger.Error("Pulling blocks failed", "err", n.err)
		}
	}()
	return nil
}

// OnStop stops the pull loop and everything OnStart started, then closes
// the databases.
func (n *Node) OnStop() {
	n.Logger.Info("Stopping Node")

	n.cancel()
	<-n.done
	n.release()
}

// release stops whatever OnStart got to start and closes the databases.
func (n *Node) release() {
	if n.downloader.IsRunning() {
		if err := n.downloader.Stop(); err != nil {
			n.Logger.Error("Error stopping downloader", "err", err)
		}
	}
	if n.prometheusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.prometheusSrv.Shutdown(ctx); err != nil {
			// Error from closing listeners, or context timeout:
			n.Logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}
	n.pusher.Stop()
	if n.profiler != nil {
		if err := n.profiler.Stop(); err != nil {
			n.Logger.Error("Error stopping pyroscope", "err", err)
		}
	}
	if n.tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.tracerProvider.Shutdown(ctx); err != nil {
			n.Logger.Error("Error flushing spans", "err", err)
		}
	}

	if err := n.headerDB.Close(); err != nil {
		n.Logger.Error("Error closing header db", "err", err)
	}
	if err := n.blockDB.Close(); err != nil {
		n.Logger.Error("Error closing block db", "err", err)
	}
}

// Done is closed when the pull loop returns.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Err returns why the pull loop returned. It must only be called after
// Done is closed.
func (n *Node) Err() error {
	return n.err
}

// Puller returns the Node's block puller.
func (n *Node) Puller() *blockpull.LookaheadPuller {
	return n.puller
}

// HeaderStore returns the Node's header store.
func (n *Node) HeaderStore() *store.HeaderStore {
	return n.headers
}

// BlockStore returns the Node's block store.
func (n *Node) BlockStore() *store.BlockStore {
	return n.blocks
}

func (n *Node) pullBlocks(ctx context.Context) error {
	started := time.Now()
	for {
		prev := n.puller.Location()
		if stop := n.config.StopHeight; stop > 0 && prev.Height >= stop {
			n.Logger.Info("Reached stop height", "height", prev.Height, "took", time.Since(started))
			return nil
		}
		if prev.Height >= n.headers.Height() {
			n.Logger.Info("Caught up with headers", "height", prev.Height, "hash", prev.Hash(),
				"took", time.Since(started))
			return nil
		}

		block, err := n.puller.NextBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		header := n.puller.Location()

		if err := n.processor.ProcessBlock(block, prev); err != nil {
			n.Logger.Error("Rejecting invalid block",
				"height", header.Height, "hash", header.Hash(), "err", err)
			if err := n.rejectBlock(block, prev); err != nil {
				return err
			}
			continue
		}

		n.Logger.Debug("Processed block", "height", header.Height, "hash", header.Hash())
		if header.Height%statusInterval == 0 {
			st := n.puller.Status()
			n.Logger.Info("Pulled blocks",
				"height", st.LocationHeight,
				"lookahead", st.LookaheadHeight,
				"buffered_blocks", st.BufferedBlocks,
				"buffered_bytes", st.BufferedBytes,
				"stalling", st.Stalling,
				"full", st.Full,
				"avg_block_size", st.AvgBlockSize)
		}
	}
}

// rejectBlock drops block and every header above prev, then moves the
// puller back to prev.
func (n *Node) rejectBlock(block *btcutil.Block, prev *chain.Header) error {
	if err := n.headers.Rewind(prev.Height); err != nil {
		return fmt.Errorf("rewinding headers to %d: %w", prev.Height, err)
	}
	if err := n.puller.Reject(block); err != nil {
		return fmt.Errorf("rejecting block %v: %w", block.Hash(), err)
	}
	return n.puller.SetLocation(prev)
}

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on the configured address.
func (n *Node) startPrometheusServer() (*http.Server, error) {
	instCfg := n.config.Instrumentation
	listener, err := net.Listen("tcp", instCfg.PrometheusListenAddr)
	if err != nil {
		return nil, fmt.Errorf("prometheus listener: %w", err)
	}
	if instCfg.MaxOpenConnections > 0 {
		listener = netutil.LimitListener(listener, instCfg.MaxOpenConnections)
	}

	srv := &http.Server{
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: instCfg.MaxOpenConnections},
			),
		),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			// Error starting or closing listener:
			n.Logger.Error("Prometheus HTTP server Serve", "err", err)
		}
	}()
	n.Logger.Info("Serving metrics", "addr", listener.Addr())
	return srv, nil
}
