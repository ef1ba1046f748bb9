package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dapper/internal/cli/output"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/config"
	"github.com/marmos91/dapper/pkg/datastore"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dapper configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dapper config validate

  # Validate specific config file
  dapper config validate --config /etc/dapper/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	displayPath := path
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := Warnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.SimpleTable(out, summary(cfg))
}

// Warnings lists settings that are valid but probably not intended.
func Warnings(cfg *config.Config) []string {
	var warnings []string

	if cfg.API.Enabled && cfg.Sessions.Secret == "" {
		warnings = append(warnings, "sessions.secret not configured - API tokens are lost on restart")
	}
	if cfg.Directory.AllowPlainTextPasswords {
		warnings = append(warnings, "directory.allowPlainTextPasswords is enabled - stored passwords may be plain text")
	}
	if cfg.Metrics.Enabled && !cfg.API.Enabled {
		warnings = append(warnings, "metrics enabled but the API server, which exposes /metrics, is disabled")
	}
	if cfg.Auth.Provider == auth.ProviderFallbackRadius && readOnly(cfg.Datastore.Provider) {
		warnings = append(warnings, fmt.Sprintf("fallback-radius cannot cache passwords in the read-only %s datastore", cfg.Datastore.Provider))
	}
	return warnings
}

func readOnly(provider string) bool {
	return provider == datastore.ProviderFile || provider == datastore.ProviderS3
}

func summary(cfg *config.Config) [][2]string {
	enabled := func(on bool, port int) string {
		if !on {
			return "disabled"
		}
		return fmt.Sprintf("port %d", port)
	}
	return [][2]string{
		{"LDAP", enabled(cfg.LDAP.Enabled, cfg.LDAP.Port)},
		{"RADIUS", enabled(cfg.Radius.Enabled, cfg.Radius.Port)},
		{"API", enabled(cfg.API.Enabled, cfg.API.Port)},
		{"Auth provider", cfg.Auth.Provider},
		{"Datastore", cfg.Datastore.Provider},
		{"Log level", cfg.Logging.Level},
	}
}
