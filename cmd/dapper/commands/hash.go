package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dapper/internal/cli/prompt"
	"github.com/marmos91/dapper/pkg/auth"
)

var hashStdin bool

var hashCmd = &cobra.Command{
	Use:   "hash [password]",
	Short: "Hash a password for use in the directory",
	Long: `Print the argon2id hash of a password, ready to paste into the
password field of a user record.

Without an argument the password is read interactively (twice, masked).

Examples:
  # Prompt for the password
  dapper hash

  # Hash from a pipe
  echo -n s3cr3t | dapper hash --stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHash,
}

func init() {
	hashCmd.Flags().BoolVar(&hashStdin, "stdin", false, "Read the password from the first line of stdin")
}

func runHash(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd, args)
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func readPassword(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case hashStdin:
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	default:
		return prompt.NewPassword(1)
	}
}
