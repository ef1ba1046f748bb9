// Package commands implements the dapper command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dapper/cmd/dapper/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dapper",
	Short: "dapper - a virtual LDAP and RADIUS directory",
	Long: `dapper serves a small user directory over LDAP and RADIUS. Users,
groups, organizations and domains are declared in a datastore (inline YAML,
a file, SQL, Badger or S3) and projected into an LDAP tree on the fly.

Use "dapper [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dapper/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
