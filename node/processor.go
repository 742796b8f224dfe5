package node

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/stratis-go/fullnode/chain"
)

// ErrBadMerkleRoot is returned for a block whose transactions do not hash
// to the merkle root in its header.
var ErrBadMerkleRoot = errors.New("merkle root mismatch")

// BlockProcessor applies blocks in chain order. An error marks the block
// invalid; the node then rejects it and rewinds.
type BlockProcessor interface {
	ProcessBlock(block *btcutil.Block, prev *chain.Header) error
}

// BlockProcessorFunc adapts a function to BlockProcessor.
type BlockProcessorFunc func(block *btcutil.Block, prev *chain.Header) error

// ProcessBlock implements BlockProcessor.
func (f BlockProcessorFunc) ProcessBlock(block *btcutil.Block, prev *chain.Header) error {
	return f(block, prev)
}

// DefaultBlockProcessor checks that a block builds on prev and that its
// body matches its header.
func DefaultBlockProcessor() BlockProcessor {
	return BlockProcessorFunc(checkBlock)
}

func checkBlock(block *btcutil.Block, prev *chain.Header) error {
	header := block.MsgBlock().Header
	if header.PrevBlock != prev.Hash() {
		return fmt.Errorf("%w: block %v builds on %v, expected %v",
			chain.ErrNotLinked, block.Hash(), header.PrevBlock, prev.Hash())
	}
	if len(block.Transactions()) == 0 {
		return errors.New("block has no transactions")
	}
	if merkle := blockchain.CalcMerkleRoot(block.Transactions(), false); merkle != header.MerkleRoot {
		return fmt.Errorf("%w: computed %v, header has %v", ErrBadMerkleRoot, merkle, header.MerkleRoot)
	}
	return nil
}
