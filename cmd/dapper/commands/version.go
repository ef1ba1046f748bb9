package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dapper %s (commit: %s, built: %s, %s %s/%s)\n",
			Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
