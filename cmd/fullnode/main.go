package main

import (
	"os"
	"path/filepath"

	cmd "github.com/stratis-go/fullnode/cmd/fullnode/commands"
	"github.com/stratis-go/fullnode/libs/cli"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenerateCmd,
		cmd.PullCmd,
		cmd.VersionCmd,
	)

	c := cli.PrepareBaseCmd(rootCmd, "FULLNODE", os.ExpandEnv(filepath.Join("$HOME", ".fullnode")))
	if err := c.Execute(); err != nil {
		panic(err)
	}
}
