package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/libs/cli"
	"github.com/stratis-go/fullnode/libs/log"
)

var (
	config = cfg.DefaultConfig()
	logger = log.NewLogger(log.NewSyncWriter(os.Stdout))
)

func init() {
	registerFlagsRootCmd(RootCmd)
}

func registerFlagsRootCmd(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log_level", config.LogLevel, "log level (debug|info|error|none)")
	cmd.PersistentFlags().String("log_format", config.LogFormat, "log format (plain|json)")
}

// ParseConfig retrieves the default environment configuration,
// sets up the root and ensures that the root exists
func ParseConfig(cmd *cobra.Command) (*cfg.Config, error) {
	conf := cfg.DefaultConfig()
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(viper.GetString(cli.HomeFlag))
	cfg.EnsureRoot(conf.RootDir)
	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCmd is the root command for the full node.
var RootCmd = &cobra.Command{
	Use:   "fullnode",
	Short: "Bitcoin full node pulling blocks in chain order",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cmd.Name() == VersionCmd.Name() {
			return nil
		}

		config, err = ParseConfig(cmd)
		if err != nil {
			return err
		}

		if config.LogFormat == cfg.LogFormatJSON {
			logger = log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
		}

		level, err := log.ParseLevel(config.LogLevel)
		if err != nil {
			return err
		}
		logger = log.NewFilter(logger, level).With("module", "main")
		return nil
	},
}
