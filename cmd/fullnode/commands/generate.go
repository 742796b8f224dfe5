package commands

import (
	"github.com/spf13/cobra"

	cfg "github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/node"
)

// GenerateCmd writes a synthetic chain into the node's databases.
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Extend the local header and block stores with synthetic blocks",
	Long: `Extend the local header and block stores with synthetic blocks.

The block store stands in for the network: pull serves every block request
out of it. --invalid-height stores a body that does not match its header,
to exercise rejection.`,
	RunE: generateChain,
}

var generateOpts node.GenerateOptions

func init() {
	GenerateCmd.Flags().IntVar(&generateOpts.Blocks, "blocks", 1000, "number of blocks to append")
	GenerateCmd.Flags().IntVar(&generateOpts.TxsPerBlock, "txs", 10, "transactions per block")
	GenerateCmd.Flags().Int64Var(&generateOpts.InvalidHeight, "invalid-height", 0,
		"height of a block stored with a corrupt body; 0 disables")
}

func generateChain(cmd *cobra.Command, args []string) error {
	tip, err := node.Generate(config, cfg.DefaultDBProvider, generateOpts, logger)
	if err != nil {
		return err
	}
	cmd.Printf("Chain tip at height %d: %v\n", tip.Height, tip.Hash())
	return nil
}
