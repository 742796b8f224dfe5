package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/stratis-go/fullnode/config"
	"github.com/stratis-go/fullnode/libs/cli"
	cmtos "github.com/stratis-go/fullnode/libs/os"
)

// testRootCmd returns a fresh root command sharing RootCmd's setup.
func testRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               RootCmd.Use,
		PersistentPreRunE: RootCmd.PersistentPreRunE,
	}
	registerFlagsRootCmd(root)
	return root
}

func TestParseConfigReadsFileAndFlags(t *testing.T) {
	defer viper.Reset()

	home := t.TempDir()
	conf := cfg.DefaultConfig()
	conf.BlockPull.Lookahead = 9
	conf.StopHeight = 77
	require.NoError(t, cmtos.EnsureDir(filepath.Join(home, cfg.DefaultConfigDir), cfg.DefaultDirPerm))
	cfg.WriteConfigFile(filepath.Join(home, cfg.DefaultConfigDir, cfg.DefaultConfigFileName), conf)

	root := testRootCmd()
	var parsed *cfg.Config
	check := &cobra.Command{
		Use: "check",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed = config
			return nil
		},
	}
	AddPullFlags(check)
	root.AddCommand(check)
	exec := cli.PrepareBaseCmd(root, "FULLNODE_TEST", home)

	root.SetArgs([]string{"check", "--stop_height", "12", "--log_level", "error"})
	require.NoError(t, exec.Command.Execute())

	require.NotNil(t, parsed)
	assert.Equal(t, home, parsed.RootDir)
	assert.EqualValues(t, 9, parsed.BlockPull.Lookahead)
	assert.EqualValues(t, 12, parsed.StopHeight)
	assert.Equal(t, "error", parsed.LogLevel)
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	defer viper.Reset()

	viper.Set(cli.HomeFlag, t.TempDir())
	viper.Set("blockpull.lookahead", 0)
	_, err := ParseConfig(RootCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[blockpull]")
}

func TestGenerateThenPull(t *testing.T) {
	defer viper.Reset()

	home := t.TempDir()
	root := testRootCmd()
	root.AddCommand(GenerateCmd, PullCmd)
	var out bytes.Buffer
	root.SetOut(&out)
	exec := cli.PrepareBaseCmd(root, "FULLNODE_TEST", home)

	root.SetArgs([]string{"generate", "--blocks", "30", "--txs", "2", "--invalid-height", "20",
		"--log_level", "error"})
	require.NoError(t, exec.Command.Execute())
	assert.Contains(t, out.String(), "Chain tip at height 30")

	viper.Reset()
	out.Reset()
	root.SetArgs([]string{"pull", "--download.simulated_latency", "1ms", "--log_level", "error"})
	require.NoError(t, exec.Command.Execute())
	assert.Contains(t, out.String(), "Pulled up to height 19 (rejected 1)")
}
