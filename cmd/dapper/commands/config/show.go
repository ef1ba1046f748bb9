package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dapper/internal/cli/output"
	"github.com/marmos91/dapper/pkg/config"
)

var (
	showFormat  string
	showSecrets bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Print the configuration after defaults and environment overrides are
applied. Secrets are masked unless --show-secrets is given.

Examples:
  dapper config show
  dapper config show -o json`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "output", "o", "yaml", "Output format (yaml, json)")
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets in clear text")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(showFormat)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		return fmt.Errorf("config show supports yaml and json output")
	}

	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}
	if !showSecrets {
		cfg = cfg.Redacted()
	}
	return output.Print(cmd.OutOrStdout(), format, cfg)
}
