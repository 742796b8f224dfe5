package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratis-go/fullnode/version"
)

// VersionCmd ...
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		if version.GitCommit != "" {
			fmt.Printf("%s-%s\n", version.FullnodeSemVer, version.GitCommit)
			return
		}
		fmt.Println(version.FullnodeSemVer)
	},
}
