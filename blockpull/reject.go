package blockpull

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Reject records block as invalid. When the current chain still contains
// it, the chain is reloaded first so that windowing restarts on the
// corrected chain. The caller is expected to SetLocation back below the
// rejected block if it had already been delivered.
func (p *LookaheadPuller) Reject(block *btcutil.Block) error {
	hash := *block.Hash()

	var err error
	if view := p.Chain(); view != nil && view.Contains(hash) {
		p.logger.Info("Rejected block is on our chain, reloading", "hash", hash)
		err = p.reloadChain()
	}

	p.rejectedMtx.Lock()
	p.rejected[hash] = struct{}{}
	p.rejectedMtx.Unlock()

	p.metrics.RejectedBlocks.Add(1)
	return err
}

// IsRejected reports whether hash was passed to Reject.
func (p *LookaheadPuller) IsRejected(hash chainhash.Hash) bool {
	p.rejectedMtx.RLock()
	defer p.rejectedMtx.RUnlock()
	_, ok := p.rejected[hash]
	return ok
}

// reloadChain swaps in a freshly loaded chain. LookaheadLocation is
// discarded when it is not on the new chain, and buffered blocks that left
// the chain are dropped.
func (p *LookaheadPuller) reloadChain() error {
	p.chainMtx.Lock()
	view, err := p.loader.ReloadChain()
	if err != nil {
		p.chainMtx.Unlock()
		return fmt.Errorf("reloading chain: %w", err)
	}
	p.chain = view
	if la := p.lookaheadLocation.Load(); la != nil && !view.Contains(la.Hash()) {
		p.clearLookahead()
	}
	p.chainMtx.Unlock()

	pruned := p.buffer.prune(view.Contains)
	p.updateBufferMetrics()
	p.metrics.ChainReloads.Add(1)

	p.logger.Info("Reloaded chain",
		"height", view.Height(),
		"tip", view.Tip().Hash(),
		"pruned", pruned)
	return nil
}
