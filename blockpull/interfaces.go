package blockpull

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/stratis-go/fullnode/chain"
)

// ChainLoader reloads the best header chain from its authoritative source.
// The returned view may diverge from the previous one after a reorg.
type ChainLoader interface {
	ReloadChain() (chain.View, error)
}

// Requester asks for block bodies. RequestBlocks must not block: results
// are delivered later, in any order, through BlockPuller.PushBlock.
// Retrying failed downloads is the Requester's business.
type Requester interface {
	RequestBlocks(headers []*chain.Header)
}

// BlockPuller hands blocks to the consensus loop strictly in chain order.
type BlockPuller interface {
	// Consumer side. Not safe for concurrent use.
	SetLocation(tip *chain.Header) error
	NextBlock(ctx context.Context) (*btcutil.Block, error)
	Reject(block *btcutil.Block) error

	// Producer side. Safe for concurrent use.
	PushBlock(ctx context.Context, length int, block *btcutil.Block) error
	IsRejected(hash chainhash.Hash) bool
}

// Ensure LookaheadPuller implements the interface
var _ BlockPuller = (*LookaheadPuller)(nil)
