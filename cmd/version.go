package cmd

import (
	"github.com/spf13/cobra"

	withversion "github.com/dkmnx/with/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(withversion.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
