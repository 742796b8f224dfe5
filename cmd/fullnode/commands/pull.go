package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/stratis-go/fullnode/config"
	cmtos "github.com/stratis-go/fullnode/libs/os"
	"github.com/stratis-go/fullnode/node"
)

// PullCmd runs the node until it has pulled every stored header's block.
var PullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull blocks in chain order up to the header tip",
	RunE:  pullBlocks,
}

func init() {
	AddPullFlags(PullCmd)
}

// AddPullFlags exposes the most common settings as flags.
func AddPullFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("stop_height", config.StopHeight, "height to stop at; 0 pulls to the tip")
	cmd.Flags().String("db_backend", config.DBBackend, "database backend: goleveldb | memdb")

	cmd.Flags().Int64("blockpull.lookahead", config.BlockPull.Lookahead,
		"number of headers requested ahead of the last delivered block")
	cmd.Flags().Int64("blockpull.max_buffered_bytes", config.BlockPull.MaxBufferedBytes,
		"ceiling on bytes of downloaded, unconsumed blocks")

	cmd.Flags().Int("download.workers", config.Download.Workers, "number of concurrent fetches")
	cmd.Flags().Duration("download.simulated_latency", config.Download.SimulatedLatency,
		"upper bound of a random delay added to each fetch")

	cmd.Flags().Bool("instrumentation.prometheus", config.Instrumentation.Prometheus,
		"serve Prometheus metrics")
	cmd.Flags().Bool("instrumentation.trace_stdout", config.Instrumentation.TraceStdout,
		"write finished spans to stdout")
}

func pullBlocks(cmd *cobra.Command, args []string) error {
	n, err := node.NewNode(config,
		cfg.DefaultDBProvider,
		node.DefaultMetricsProvider(config.Instrumentation),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	logger.Info("Started node", "headers", n.HeaderStore().Height())

	// Stop upon receiving SIGTERM or CTRL-C.
	cmtos.TrapSignal(logger, func() {
		if n.IsRunning() {
			if err := n.Stop(); err != nil {
				logger.Error("unable to stop the node", "error", err)
			}
		}
	})

	<-n.Done()
	pullErr := n.Err()
	st := n.Puller().Status()
	if err := n.Stop(); err != nil {
		logger.Error("unable to stop the node", "error", err)
	}
	if pullErr != nil {
		return pullErr
	}

	cmd.Printf("Pulled up to height %d (rejected %d)\n", st.LocationHeight, st.Rejected)
	return nil
}
