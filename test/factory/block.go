package factory

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/stratis-go/fullnode/chain"
	"github.com/stratis-go/fullnode/internal/synth"
)

// MakeBlock builds a block at height on top of prev carrying numTxs
// transactions.
func MakeBlock(prev chainhash.Hash, height int64, numTxs int, tag byte) *btcutil.Block {
	return synth.Block(prev, height, numTxs, tag)
}

// MakeBlocks returns genesis followed by n blocks linked to it.
func MakeBlocks(n int, numTxs int) []*btcutil.Block {
	blocks := make([]*btcutil.Block, 0, n+1)
	blocks = append(blocks, synth.Genesis())
	return ExtendBlocks(blocks, n, numTxs, 0)
}

// ExtendBlocks appends n blocks on top of the last block of blocks. A
// non-zero tag yields a branch distinct from one built with another tag.
func ExtendBlocks(blocks []*btcutil.Block, n int, numTxs int, tag byte) []*btcutil.Block {
	out := make([]*btcutil.Block, len(blocks), len(blocks)+n)
	copy(out, blocks)
	for i := 0; i < n; i++ {
		prev := out[len(out)-1]
		out = append(out, MakeBlock(*prev.Hash(), int64(len(out)), numTxs, tag))
	}
	return out
}

// MakeChain builds a header chain out of blocks, blocks[0] being genesis.
func MakeChain(blocks []*btcutil.Block) *chain.Chain {
	c := chain.NewChain(blocks[0].MsgBlock().Header)
	for _, b := range blocks[1:] {
		if _, err := c.Append(b.MsgBlock().Header); err != nil {
			panic(err)
		}
	}
	return c
}

// BlockSize returns the serialized size of b.
func BlockSize(b *btcutil.Block) int {
	return b.MsgBlock().SerializeSize()
}
