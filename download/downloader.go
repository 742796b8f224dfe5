// Package download serves block requests by fetching block bodies with a
// pool of workers and pushing them to a sink as they arrive.
package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stratis-go/fullnode/blockpull"
	"github.com/stratis-go/fullnode/chain"
	"github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/libs/log"
	"github.com/stratis-go/fullnode/libs/service"
	cmtsync "github.com/stratis-go/fullnode/libs/sync"
)

// Sink receives downloaded blocks.
type Sink interface {
	PushBlock(ctx context.Context, length int, block *btcutil.Block) error
}

// RejectFilter tells whether a block is known to be invalid.
type RejectFilter interface {
	IsRejected(hash chainhash.Hash) bool
}

// Downloader implements blockpull.Requester. Requested headers are queued
// and fetched by Workers goroutines, lowest height first. A fetch is
// retried with exponential backoff; a header that still fails is queued
// again, since the consumer cannot make progress without it.
type Downloader struct {
	service.BaseService

	cfg     *config.DownloadConfig
	fetcher Fetcher
	sink    Sink
	filter  RejectFilter
	metrics *Metrics
	tracer  trace.Tracer

	mtx    cmtsync.Mutex
	queue  *headerQueue
	notify chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

var _ blockpull.Requester = (*Downloader)(nil)

// DownloaderOption sets an optional parameter on the Downloader.
type DownloaderOption func(*Downloader)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) DownloaderOption {
	return func(d *Downloader) { d.metrics = metrics }
}

// WithTracer sets the tracer download spans are started with.
func WithTracer(tracer trace.Tracer) DownloaderOption {
	return func(d *Downloader) { d.tracer = tracer }
}

// WithRejectFilter makes the downloader skip headers filter reports as
// rejected.
func WithRejectFilter(filter RejectFilter) DownloaderOption {
	return func(d *Downloader) { d.filter = filter }
}

// NewDownloader returns a downloader fetching through fetcher and
// delivering to sink. The sink may be set later with SetSink, before
// Start.
func NewDownloader(
	cfg *config.DownloadConfig,
	fetcher Fetcher,
	sink Sink,
	logger log.Logger,
	options ...DownloaderOption,
) *Downloader {
	d := &Downloader{
		cfg:     cfg,
		fetcher: fetcher,
		sink:    sink,
		metrics: NopMetrics(),
		tracer:  otel.Tracer("github.com/stratis-go/fullnode/download"),
		queue:   newHeaderQueue(),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	d.BaseService = *service.NewBaseService(logger, "Downloader", d)
	for _, option := range options {
		option(d)
	}
	return d
}

// SetSink sets the destination of downloaded blocks. The puller and the
// downloader refer to each other, so one of them is wired after
// construction. A sink that is also a RejectFilter becomes the filter
// unless one is set already.
func (d *Downloader) SetSink(sink Sink) {
	d.sink = sink
	if filter, ok := sink.(RejectFilter); ok && d.filter == nil {
		d.filter = filter
	}
}

// OnStart implements service.Service by spawning the workers.
func (d *Downloader) OnStart() error {
	if d.sink == nil {
		return errors.New("downloader has no sink")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error { return d.worker(gctx) })
	}
	go func() {
		if err := g.Wait(); err != nil {
			d.Logger.Error("Download worker failed", "err", err)
		}
		close(d.done)
	}()
	return nil
}

// OnStop implements service.Service by stopping the workers and waiting
// for them to return.
func (d *Downloader) OnStop() {
	d.cancel()
	<-d.done
}

// RequestBlocks implements blockpull.Requester. It never blocks.
func (d *Downloader) RequestBlocks(headers []*chain.Header) {
	d.mtx.Lock()
	added := 0
	for _, h := range headers {
		if d.filter != nil && d.filter.IsRejected(h.Hash()) {
			d.metrics.DroppedBlocks.Add(1)
			continue
		}
		if d.queue.push(h) {
			added++
		}
	}
	queued := d.queue.len()
	d.mtx.Unlock()

	d.metrics.QueuedBlocks.Set(float64(queued))
	d.Logger.Debug("Queued block requests", "added", added, "queued", queued)
	d.wakeWorker()
}

// Queued returns the number of headers waiting for a worker.
func (d *Downloader) Queued() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.queue.len()
}

func (d *Downloader) wakeWorker() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// next pops the lowest pending header. A remaining backlog wakes another
// worker.
func (d *Downloader) next() (*chain.Header, bool) {
	d.mtx.Lock()
	h, ok := d.queue.pop()
	remaining := d.queue.len()
	d.mtx.Unlock()

	if ok {
		d.metrics.QueuedBlocks.Set(float64(remaining))
		if remaining > 0 {
			d.wakeWorker()
		}
	}
	return h, ok
}

func (d *Downloader) requeue(h *chain.Header) {
	d.mtx.Lock()
	d.queue.push(h)
	d.mtx.Unlock()
	d.wakeWorker()
}

func (d *Downloader) worker(ctx context.Context) error {
	for {
		header, ok := d.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-d.notify:
			}
			continue
		}

		err := d.download(ctx, header)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		default:
			d.Logger.Error("Failed to download block, requeueing",
				"height", header.Height, "hash", header.Hash(), "err", err)
			d.requeue(header)
		}
	}
}

// download fetches the block of header and hands it to the sink.
func (d *Downloader) download(ctx context.Context, header *chain.Header) (err error) {
	hash := header.Hash()
	ctx, span := d.tracer.Start(ctx, "download.FetchBlock", trace.WithAttributes(
		attribute.Int64("height", header.Height),
		attribute.Stringer("hash", hash),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if d.filter != nil && d.filter.IsRejected(hash) {
		d.Logger.Debug("Skipping rejected block", "height", header.Height, "hash", hash)
		span.AddEvent("skipped rejected block")
		d.metrics.DroppedBlocks.Add(1)
		return nil
	}

	var (
		block   *btcutil.Block
		length  int
		attempt int
	)
	fetch := func() error {
		attempt++
		b, n, err := d.fetcher.FetchBlock(ctx, header)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			span.AddEvent("fetch failed", trace.WithAttributes(attribute.Int("attempt", attempt)))
			d.metrics.FetchFailures.Add(1)
			d.Logger.Debug("Fetch failed", "height", header.Height, "attempt", attempt, "err", err)
			return err
		}
		block, length = b, n
		return nil
	}
	if err := backoff.Retry(fetch, d.newBackOff(ctx)); err != nil {
		return fmt.Errorf("fetching block %v after %d attempts: %w", hash, attempt, err)
	}
	span.SetAttributes(attribute.Int("attempts", attempt), attribute.Int("length", length))

	err = d.sink.PushBlock(ctx, length, block)
	switch {
	case err == nil:
		d.metrics.FetchedBlocks.Add(1)
		return nil
	case errors.Is(err, blockpull.ErrUnknownBlock):
		// the chain was reloaded while the block was in flight
		d.Logger.Debug("Dropping block no longer on chain", "height", header.Height, "hash", hash)
		span.AddEvent("dropped block no longer on chain")
		d.metrics.DroppedBlocks.Add(1)
		return nil
	default:
		return fmt.Errorf("pushing block %v: %w", hash, err)
	}
}

func (d *Downloader) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.RetryInterval
	eb.MaxInterval = 30 * d.cfg.RetryInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, d.cfg.MaxRetries), ctx)
}
