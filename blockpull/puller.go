// Package blockpull decouples block retrieval from block consumption.
//
// A LookaheadPuller keeps a window of block requests ahead of the consumer,
// buffers whatever the network delivers in any order, and hands blocks to
// the consumer strictly in chain order. Buffered bytes are capped, except
// for the one block the consumer needs next, which is always admitted.
package blockpull

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratis-go/fullnode/chain"
	"github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/libs/log"
	cmtsync "github.com/stratis-go/fullnode/libs/sync"
)

// number of delivered block sizes kept for Status
const blockStatsWindow = 100

// State is the lifecycle stage of a LookaheadPuller.
type State int

const (
	// StateUninitialized means no chain has been loaded yet.
	StateUninitialized State = iota
	// StateWarmingUp means the chain is loaded but no window is requested.
	StateWarmingUp
	// StateSteady means a window is established and refilled on delivery.
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWarmingUp:
		return "warming_up"
	case StateSteady:
		return "steady"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LookaheadPuller is the lookahead block buffering engine. Any number of
// goroutines may call PushBlock; a single consumer goroutine drives
// SetLocation, NextBlock and Reject.
type LookaheadPuller struct {
	logger  log.Logger
	metrics *Metrics
	tracer  trace.Tracer

	lookahead   int64
	waitTimeout time.Duration

	loader    ChainLoader
	requester Requester

	// chainMtx guards chain and every window computation, so that a reload
	// never interleaves with building a request range.
	chainMtx cmtsync.RWMutex
	chain    chain.View

	// Both locations are written from the consumer side only. Producers
	// read location to decide admission without any ordering with the
	// consumer's writes.
	location          atomic.Pointer[chain.Header]
	lookaheadLocation atomic.Pointer[chain.Header]

	buffer *blockBuffer
	sizes  *blockStats

	stalling atomic.Bool
	full     atomic.Bool

	rejectedMtx cmtsync.RWMutex
	rejected    map[chainhash.Hash]struct{}
}

// PullerOption sets an optional parameter on the LookaheadPuller.
type PullerOption func(*LookaheadPuller)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) PullerOption {
	return func(p *LookaheadPuller) { p.metrics = metrics }
}

// WithTracer sets the tracer NextBlock spans are started with.
func WithTracer(tracer trace.Tracer) PullerOption {
	return func(p *LookaheadPuller) { p.tracer = tracer }
}

// NewLookaheadPuller returns a puller that loads its chain through loader
// and asks requester for block bodies.
func NewLookaheadPuller(
	cfg *config.BlockPullConfig,
	loader ChainLoader,
	requester Requester,
	logger log.Logger,
	options ...PullerOption,
) *LookaheadPuller {
	p := &LookaheadPuller{
		logger:      logger,
		metrics:     NopMetrics(),
		tracer:      otel.Tracer("github.com/stratis-go/fullnode/blockpull"),
		lookahead:   cfg.Lookahead,
		waitTimeout: cfg.WaitTimeout,
		loader:      loader,
		requester:   requester,
		buffer:      newBlockBuffer(cfg.MaxBufferedBytes, logger),
		sizes:       newBlockStats(blockStatsWindow),
		rejected:    make(map[chainhash.Hash]struct{}),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// SetLocation sets the header of the last block the consumer already has.
// The next NextBlock returns the block right above it and restarts
// windowing from there, since heights between a moved location and the old
// lookahead may never have been requested.
func (p *LookaheadPuller) SetLocation(tip *chain.Header) error {
	if tip == nil {
		return ErrNilLocation
	}
	p.chainMtx.Lock()
	p.location.Store(tip)
	p.clearLookahead()
	p.chainMtx.Unlock()

	p.metrics.LocationHeight.Set(float64(tip.Height))
	p.logger.Info("Set location", "height", tip.Height, "hash", tip.Hash())
	return nil
}

// Location returns the header of the last delivered block, or nil.
func (p *LookaheadPuller) Location() *chain.Header {
	return p.location.Load()
}

// LookaheadLocation returns the far edge of the requested window, or nil
// before the first window.
func (p *LookaheadPuller) LookaheadLocation() *chain.Header {
	return p.lookaheadLocation.Load()
}

// Chain returns the current chain view, or nil before the first load.
func (p *LookaheadPuller) Chain() chain.View {
	p.chainMtx.RLock()
	defer p.chainMtx.RUnlock()
	return p.chain
}

// IsStalling reports whether the consumer is waiting on a missing block,
// i.e. downloads are the bottleneck.
func (p *LookaheadPuller) IsStalling() bool {
	return p.stalling.Load()
}

// IsFull reports whether a producer is waiting for buffer space, i.e. the
// consumer is the bottleneck.
func (p *LookaheadPuller) IsFull() bool {
	return p.full.Load()
}

// State returns the lifecycle stage.
func (p *LookaheadPuller) State() State {
	if p.Chain() == nil {
		return StateUninitialized
	}
	if p.lookaheadLocation.Load() == nil {
		return StateWarmingUp
	}
	return StateSteady
}

// NextBlock returns the block at Location+1, blocking until it has been
// downloaded or ctx is done. The first call loads the chain and requests
// two windows; later calls top the window up so that between lookahead and
// twice lookahead blocks stay in flight.
func (p *LookaheadPuller) NextBlock(ctx context.Context) (*btcutil.Block, error) {
	ctx, span := p.tracer.Start(ctx, "blockpull.NextBlock")
	defer span.End()

	block, err := p.nextBlock(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("height", p.location.Load().Height),
		attribute.Stringer("hash", block.Hash()),
	)
	return block, nil
}

func (p *LookaheadPuller) nextBlock(ctx context.Context) (*btcutil.Block, error) {
	if p.location.Load() == nil {
		return nil, ErrLocationNotSet
	}
	if p.Chain() == nil {
		if err := p.reloadChain(); err != nil {
			return nil, err
		}
	}

	if p.lookaheadLocation.Load() == nil {
		if err := p.requestNextWindow(); err != nil {
			return nil, err
		}
		if err := p.requestNextWindow(); err != nil {
			return nil, err
		}
	}

	block, err := p.nextBlockCore(ctx)
	if err != nil {
		return nil, err
	}

	la := p.lookaheadLocation.Load()
	if la == nil || la.Height-p.location.Load().Height <= p.lookahead {
		if err := p.requestNextWindow(); err != nil {
			p.logger.Error("Failed to refill window", "err", err)
		}
	}
	return block, nil
}

// nextBlockCore waits until the block above Location is buffered, then
// takes it and advances Location. It must only be called by the consumer.
func (p *LookaheadPuller) nextBlockCore(ctx context.Context) (*btcutil.Block, error) {
	stalled := false
	for {
		pushed := p.buffer.pushed.wait()

		loc := p.location.Load()
		if header := p.Chain().HeaderAt(loc.Height + 1); header != nil {
			if dl := p.buffer.take(header.Hash()); dl != nil {
				p.setStalling(false)
				p.location.Store(header)
				p.buffer.consumed.broadcast()
				p.recordDelivery(header, dl)
				return dl.Block, nil
			}
		}

		if !stalled {
			stalled = true
			trace.SpanFromContext(ctx).AddEvent("stalling",
				trace.WithAttributes(attribute.Int64("height", loc.Height+1)))
		}
		p.setStalling(true)
		if err := sleep(ctx, pushed, p.waitTimeout); err != nil {
			return nil, err
		}
	}
}

// PushBlock hands a downloaded block of the given serialized length to the
// puller. While the buffer is full it blocks, unless block is the very one
// the consumer needs next. Blocks already consumed are dropped, and a block
// that a chain reload removed while waiting yields ErrUnknownBlock.
func (p *LookaheadPuller) PushBlock(ctx context.Context, length int, block *btcutil.Block) error {
	if length < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	view := p.Chain()
	if view == nil {
		return ErrChainNotLoaded
	}
	hash := *block.Hash()
	header := view.HeaderByHash(hash)
	if header == nil {
		return fmt.Errorf("%w: %v", ErrUnknownBlock, hash)
	}

	dl := &DownloadedBlock{Block: block, Length: length, ReceivedAt: time.Now()}
	for {
		consumed := p.buffer.consumed.wait()

		// Best effort: the consumer may advance location right after this
		// read. A stale value only costs one more wait.
		loc := p.location.Load()
		if loc != nil && header.Height <= loc.Height {
			p.logger.Debug("Received already consumed block", "height", header.Height, "hash", hash)
			return nil
		}
		urgent := loc != nil && header.Height == loc.Height+1

		added, err := p.addIfOnChain(hash, dl, urgent)
		if err != nil {
			return err
		}
		if added {
			p.setFull(false)
			p.updateBufferMetrics()
			return nil
		}

		p.setFull(true)
		if err := sleep(ctx, consumed, p.waitTimeout); err != nil {
			return err
		}
	}
}

// addIfOnChain buffers dl unless the current chain no longer contains hash.
// The read lock orders the insert before a reload swaps the chain, so the
// reload's prune sees every block admitted against the old chain.
func (p *LookaheadPuller) addIfOnChain(hash chainhash.Hash, dl *DownloadedBlock, urgent bool) (bool, error) {
	p.chainMtx.RLock()
	defer p.chainMtx.RUnlock()

	if !p.chain.Contains(hash) {
		p.setFull(false)
		p.logger.Debug("Dropped block that left the chain", "hash", hash)
		return false, fmt.Errorf("%w: %v", ErrUnknownBlock, hash)
	}
	return p.buffer.add(hash, dl, urgent), nil
}

// Status is a point in time summary, for monitoring.
type Status struct {
	State           State
	LocationHeight  int64 // -1 when unset
	LookaheadHeight int64 // -1 when unset
	Stalling        bool
	Full            bool
	BufferedBlocks  int
	BufferedBytes   int64
	Rejected        int
	AvgBlockSize    int
	MaxBlockSize    int
}

// Status returns the current status.
func (p *LookaheadPuller) Status() Status {
	numBlocks, size := p.buffer.Stats()

	p.rejectedMtx.RLock()
	rejected := len(p.rejected)
	p.rejectedMtx.RUnlock()

	return Status{
		State:           p.State(),
		LocationHeight:  heightOf(p.location.Load()),
		LookaheadHeight: heightOf(p.lookaheadLocation.Load()),
		Stalling:        p.IsStalling(),
		Full:            p.IsFull(),
		BufferedBlocks:  numBlocks,
		BufferedBytes:   size,
		Rejected:        rejected,
		AvgBlockSize:    p.sizes.GetAverage(),
		MaxBlockSize:    p.sizes.GetMax(),
	}
}

func (p *LookaheadPuller) recordDelivery(header *chain.Header, dl *DownloadedBlock) {
	p.sizes.Add(dl.Length)

	p.metrics.BlocksDelivered.Add(1)
	p.metrics.BlockSizeBytes.Set(float64(dl.Length))
	p.metrics.LocationHeight.Set(float64(header.Height))
	p.updateBufferMetrics()

	p.logger.Debug("Delivered block",
		"height", header.Height,
		"hash", header.Hash(),
		"length", dl.Length,
		"buffered_for", time.Since(dl.ReceivedAt))
}

func (p *LookaheadPuller) updateBufferMetrics() {
	numBlocks, size := p.buffer.Stats()
	p.metrics.BufferedBlocks.Set(float64(numBlocks))
	p.metrics.BufferedBytes.Set(float64(size))
}

func (p *LookaheadPuller) setStalling(v bool) {
	p.stalling.Store(v)
	p.metrics.Stalling.Set(boolToFloat(v))
}

func (p *LookaheadPuller) setFull(v bool) {
	p.full.Store(v)
	p.metrics.Full.Set(boolToFloat(v))
}

func heightOf(h *chain.Header) int64 {
	if h == nil {
		return -1
	}
	return h.Height
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
