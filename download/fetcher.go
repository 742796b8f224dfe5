package download

import (
	"context"
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/stratis-go/fullnode/chain"
)

// Fetcher retrieves the body of a block. It returns the block and its
// serialized length.
type Fetcher interface {
	FetchBlock(ctx context.Context, header *chain.Header) (*btcutil.Block, int, error)
}

// BlockSource is a local store of block bodies.
type BlockSource interface {
	LoadBlock(hash chainhash.Hash) (*btcutil.Block, int, error)
}

// StoreFetcher serves blocks out of a BlockSource. Every fetch is delayed
// by a random duration up to latency, so concurrent fetches complete out
// of order the way network downloads do.
type StoreFetcher struct {
	source  BlockSource
	latency time.Duration
}

var _ Fetcher = (*StoreFetcher)(nil)

// NewStoreFetcher returns a fetcher reading from source. A zero latency
// disables the delay.
func NewStoreFetcher(source BlockSource, latency time.Duration) *StoreFetcher {
	return &StoreFetcher{source: source, latency: latency}
}

// FetchBlock implements Fetcher.
func (f *StoreFetcher) FetchBlock(ctx context.Context, header *chain.Header) (*btcutil.Block, int, error) {
	if f.latency > 0 {
		timer := time.NewTimer(time.Duration(rand.Int63n(int64(f.latency))))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, 0, ctx.Err()
		}
	}

	block, length, err := f.source.LoadBlock(header.Hash())
	if err != nil {
		return nil, 0, err
	}
	block.SetHeight(int32(header.Height))
	return block, length, nil
}
