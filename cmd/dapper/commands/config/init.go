package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dapper/internal/cli/prompt"
	"github.com/marmos91/dapper/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default dapper configuration.

By default the file is created at $XDG_CONFIG_HOME/dapper/config.yaml.
Use --config to choose another path.

Examples:
  # Initialize with default location
  dapper config init

  # Initialize with custom path
  dapper config init --config /etc/dapper/config.yaml

  # Overwrite an existing file without asking
  dapper config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(path); err == nil && !force {
		ok, err := prompt.Confirm(fmt.Sprintf("%s exists. Overwrite", path))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
		force = true
	}

	written, err := config.InitConfig(path, force)
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", written)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Declare users and groups under datastore.data, or point datastore at a file")
	_, _ = fmt.Fprintln(out, "  2. Hash passwords with: dapper hash")
	_, _ = fmt.Fprintf(out, "  3. Start the server with: dapper start --config %s\n", written)
	_, _ = fmt.Fprintln(out, "\nSecurity note:")
	_, _ = fmt.Fprintln(out, "  Set a sessions secret so API tokens survive restarts:")
	_, _ = fmt.Fprintln(out, "    export DAPPER_SESSIONS_SECRET=$(openssl rand -hex 32)")
	return nil
}
