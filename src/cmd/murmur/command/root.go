package command

import (
	"fmt"
	"os"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/spf13/cobra"
)

var _config = config.NewDefaultConfig()

// RootCmd is the base command for the murmur CLI.
var RootCmd = &cobra.Command{
	Use:   "murmur",
	Short: "murmur cluster gossip node",
}

func init() {
	RootCmd.AddCommand(
		NewRunCmd(),
		NewKeygenCmd(),
		NewVersionCmd(),
	)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)

		os.Exit(1)
	}
}
