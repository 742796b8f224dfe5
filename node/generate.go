package node

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/stratis-go/fullnode/chain"
	cfg "github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/internal/synth"
	"github.com/stratis-go/fullnode/libs/log"
	"github.com/stratis-go/fullnode/store"
)

// GenerateOptions describes a synthetic chain.
type GenerateOptions struct {
	// Number of blocks appended on top of the stored tip.
	Blocks int
	// Transactions per block, coinbase included.
	TxsPerBlock int
	// When positive, the body stored at this height does not match its
	// header, so the node rejects it.
	InvalidHeight int64
}

// Generate extends the stores of config by a synthetic chain, creating
// genesis first if they are empty. It returns the new tip.
func Generate(config *cfg.Config, dbProvider cfg.DBProvider, opts GenerateOptions, logger log.Logger) (*chain.Header, error) {
	headerDB, blockDB, err := initDBs(config, dbProvider)
	if err != nil {
		return nil, err
	}
	defer headerDB.Close()
	defer blockDB.Close()

	headers, err := store.NewHeaderStore(headerDB)
	if err != nil {
		return nil, err
	}
	blocks, err := store.NewBlockStore(blockDB)
	if err != nil {
		return nil, err
	}

	return generateChain(headers, blocks, opts, logger)
}

func generateChain(headers *store.HeaderStore, blocks *store.BlockStore, opts GenerateOptions, logger log.Logger) (*chain.Header, error) {
	if headers.Height() < 0 {
		genesis := synth.Genesis()
		if _, err := saveBlock(headers, blocks, genesis, genesis); err != nil {
			return nil, fmt.Errorf("saving genesis: %w", err)
		}
		logger.Info("Created genesis", "hash", genesis.Hash())
	}

	tip, err := headers.LoadHeader(headers.Height())
	if err != nil {
		return nil, err
	}

	for i := 0; i < opts.Blocks; i++ {
		height := tip.Height + 1
		block := synth.Block(tip.Hash(), height, opts.TxsPerBlock, 0)
		body := block
		if height == opts.InvalidHeight {
			body = synth.Corrupt(block)
			logger.Info("Storing invalid block body", "height", height, "hash", block.Hash())
		}
		if tip, err = saveBlock(headers, blocks, block, body); err != nil {
			return nil, fmt.Errorf("saving block at height %d: %w", height, err)
		}
		if height%1000 == 0 {
			logger.Info("Generated blocks", "height", height)
		}
	}

	logger.Info("Generated chain", "height", tip.Height, "tip", tip.Hash())
	return tip, nil
}

func saveBlock(headers *store.HeaderStore, blocks *store.BlockStore, block, body *btcutil.Block) (*chain.Header, error) {
	header, err := headers.SaveHeader(block.MsgBlock().Header)
	if err != nil {
		return nil, err
	}
	if err := blocks.SaveBlock(body); err != nil {
		return nil, err
	}
	return header, nil
}
