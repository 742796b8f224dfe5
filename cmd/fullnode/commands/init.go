package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	cfg "github.com/stratis-go/fullnode/config"
	cmtos "github.com/stratis-go/fullnode/libs/os"
)

// InitFilesCmd initialises a fresh home directory.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the home directory and config file",
	RunE:  initFiles,
}

var overwriteConfig bool

func init() {
	InitFilesCmd.Flags().BoolVar(&overwriteConfig, "overwrite", false,
		"rewrite config.toml with the current settings, flags included")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	configFile := filepath.Join(config.RootDir, cfg.DefaultConfigDir, cfg.DefaultConfigFileName)
	if cmtos.FileExists(configFile) && !overwriteConfig {
		logger.Info("Found config file", "path", configFile)
		return nil
	}

	cfg.WriteConfigFile(configFile, config)
	logger.Info("Generated config file", "path", configFile)
	return nil
}
