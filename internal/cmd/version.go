package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fathomlabs/stratus/internal/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stratus version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "stratus", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
