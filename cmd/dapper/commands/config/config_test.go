package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/config"
	"github.com/marmos91/dapper/pkg/datastore"
)

// testRoot mirrors the real root command: a persistent --config flag above Cmd.
var testRoot = func() *cobra.Command {
	r := &cobra.Command{Use: "dapper", SilenceUsage: true, SilenceErrors: true}
	r.PersistentFlags().String("config", "", "")
	r.AddCommand(Cmd)
	return r
}()

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	initForce = false
	schemaOutput = ""
	showFormat = "yaml"
	showSecrets = false

	var out bytes.Buffer
	r := testRoot
	r.SetOut(&out)
	r.SetErr(&out)
	r.SetArgs(args)
	err := r.Execute()
	return out.String(), err
}

func TestInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dapper", "config.yaml")

	out, err := run(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	out, err = run(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")
	assert.Contains(t, out, "sessions.secret not configured")
	assert.Contains(t, out, "port 389")

	_, err = run(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestValidateMissingFile(t *testing.T) {
	_, err := run(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShowRedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
radius:
  enabled: true
  secret: radius-shared-secret
`), 0600))

	out, err := run(t, "config", "show", "--config", path, "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "radius-shared-secret")

	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.True(t, shown.Radius.Enabled)
	assert.NotEmpty(t, shown.Radius.Secret)

	out, err = run(t, "config", "show", "--config", path, "--show-secrets")
	require.NoError(t, err)
	assert.Contains(t, out, "radius-shared-secret")

	_, err = run(t, "config", "show", "--config", path, "-o", "table")
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	out, err := run(t, "config", "schema")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	file := filepath.Join(t.TempDir(), "schema.json")
	_, err = run(t, "config", "schema", "--output", file)
	require.NoError(t, err)
	assert.FileExists(t, file)
}

func TestWarnings(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Sessions.Secret = "0123456789abcdef0123456789abcdef"
	assert.Empty(t, Warnings(cfg))

	cfg.Directory.AllowPlainTextPasswords = true
	cfg.Auth.Provider = auth.ProviderFallbackRadius
	cfg.Datastore.Provider = datastore.ProviderFile
	cfg.Metrics.Enabled = true
	cfg.API.Enabled = false
	assert.Len(t, Warnings(cfg), 3)
}
